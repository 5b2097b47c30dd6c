package markdown

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/cedarlabs/vaultsync/internal/block"
)

// ResourceResolver resolves a Markdown image/link reference to a local
// file path, the capability the converter depends on instead of a
// concrete resource index or gateway client (design note §9,
// "Coroutines / callbacks"). A nil or failing resolve leaves the
// original Markdown image syntax in place as literal text.
type ResourceResolver interface {
	Resolve(ref string) (localPath string, ok bool)
}

// mediaExtensions is the allow-list of non-image attachments that
// become File blocks rather than Image blocks (spec §4.3).
var mediaExtensions = map[string]bool{
	"mp4": true, "mov": true, "avi": true, "mkv": true, "webm": true, "flv": true,
	"pdf": true, "doc": true, "docx": true, "xls": true, "xlsx": true,
	"ppt": true, "pptx": true, "zip": true, "rar": true, "7z": true, "tar": true,
	"txt": true, "md": true,
}

var parser = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))

// Parse converts a Markdown document into a block tree per spec §4.3:
// front-matter extraction, preprocessing, CommonMark-plus-tables
// parsing, and the block-mapping rules (headings, lists, checkboxes,
// code, quotes, tables, images/files).
func Parse(src string, resolver ResourceResolver) []*block.Block {
	var roots []*block.Block

	body := src
	if remaining, pairs, ok := extractFrontMatter(src); ok {
		roots = append(roots, frontMatterBlock(pairs))
		body = remaining
	}

	body = preprocess(body)
	source := []byte(body)
	doc := parser.Parser().Parse(text.NewReader(source))

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		roots = append(roots, convertBlock(n, source, resolver)...)
	}
	if len(roots) == 0 {
		roots = append(roots, block.New(block.TypeText))
	}
	return roots
}

// convertBlock converts one top-level (document- or list-item-level)
// AST node into zero or more sibling Block values.
func convertBlock(n ast.Node, source []byte, resolver ResourceResolver) []*block.Block {
	switch n.Kind() {
	case ast.KindHeading:
		h := n.(*ast.Heading)
		b := block.New(block.HeadingType(h.Level))
		b.Elements = inlineElements(n, source)
		return []*block.Block{b}

	case ast.KindThematicBreak:
		return []*block.Block{block.New(block.TypeDivider)}

	case ast.KindFencedCodeBlock:
		fc := n.(*ast.FencedCodeBlock)
		b := block.New(block.TypeCode)
		lang := strings.TrimSpace(string(fc.Language(source)))
		if name, ok := langByCode[LanguageCode(lang)]; ok && lang != "" {
			b.Code.Language = name
		}
		b.Elements = []block.Element{block.TextRun(linesText(fc, source))}
		return []*block.Block{b}

	case ast.KindCodeBlock:
		cb := n.(*ast.CodeBlock)
		b := block.New(block.TypeCode)
		b.Elements = []block.Element{block.TextRun(linesText(cb, source))}
		return []*block.Block{b}

	case ast.KindBlockquote:
		var out []*block.Block
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			out = append(out, convertQuoteChild(c, source)...)
		}
		return out

	case ast.KindParagraph, ast.KindTextBlock:
		return convertParagraph(n, source, resolver)

	case ast.KindList:
		return convertList(n.(*ast.List), source, resolver)

	case east.KindTable:
		if b := convertTable(n, source); b != nil {
			return []*block.Block{b}
		}
		return nil

	default:
		return nil
	}
}

// convertQuoteChild renders a blockquote's direct children as Quote
// blocks. Design note §9: nested lists inside a blockquote are
// flattened -- their items become Quote blocks losing list structure,
// rather than introducing a dedicated quote-containing-list type the
// spec does not require.
func convertQuoteChild(n ast.Node, source []byte) []*block.Block {
	switch n.Kind() {
	case ast.KindParagraph, ast.KindTextBlock:
		b := block.New(block.TypeQuote)
		b.Elements = inlineElements(n, source)
		return []*block.Block{b}
	case ast.KindList:
		var out []*block.Block
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				out = append(out, convertQuoteChild(c, source)...)
			}
		}
		return out
	case ast.KindBlockquote:
		var out []*block.Block
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			out = append(out, convertQuoteChild(c, source)...)
		}
		return out
	default:
		return convertBlock(n, source, nil)
	}
}

// convertList walks a List node's items. Nesting is already explicit
// in goldmark's tree (unlike the flat token stream the original
// markdown-it-based parser dealt with): a nested List found among a
// ListItem's children attaches as Children of that item's own content
// block, matching invariant 3.
func convertList(l *ast.List, source []byte, resolver ResourceResolver) []*block.Block {
	ordered := l.IsOrdered()
	var out []*block.Block
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		out = append(out, convertListItem(item, ordered, source, resolver)...)
	}
	return out
}

func convertListItem(item ast.Node, ordered bool, source []byte, resolver ResourceResolver) []*block.Block {
	var content *block.Block
	var nested []*block.Block

	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		switch c.Kind() {
		case ast.KindList:
			nested = append(nested, convertList(c.(*ast.List), source, resolver)...)
		case ast.KindParagraph, ast.KindTextBlock:
			if content == nil {
				content = listItemContentBlock(c, ordered, source, resolver)
			} else {
				// A second paragraph in a loose list item: emit as a
				// Text child of the item, ahead of any nested blocks,
				// rather than discarding it.
				extra := block.New(block.TypeText)
				extra.Elements = inlineElements(c, source)
				nested = append([]*block.Block{extra}, nested...)
			}
		default:
			converted := convertBlock(c, source, resolver)
			nested = append(nested, converted...)
		}
	}
	if content == nil {
		content = block.New(blockTypeForList(ordered))
		content.Elements = []block.Element{block.TextRun("")}
	}
	content.Children = append(content.Children, nested...)
	return []*block.Block{content}
}

func blockTypeForList(ordered bool) block.Type {
	if ordered {
		return block.TypeOrdered
	}
	return block.TypeBullet
}

// listItemContentBlock builds the Bullet/Ordered/Todo block for a list
// item's own paragraph, detecting and stripping a leading "[ ]"/"[x]"
// checkbox marker into a Todo block (spec §4.3, invariant 5: no Bullet
// block whose content begins with a checkbox marker may be produced).
func listItemContentBlock(n ast.Node, ordered bool, source []byte, resolver ResourceResolver) *block.Block {
	elements := inlineElements(n, source)
	if done, ok, stripped := stripCheckbox(elements); ok {
		b := block.New(block.TypeTodo)
		b.Todo.Done = done
		b.Elements = stripped
		return b
	}
	b := block.New(blockTypeForList(ordered))
	b.Elements = elements
	return b
}

func stripCheckbox(elements []block.Element) (done bool, ok bool, stripped []block.Element) {
	if len(elements) == 0 || elements[0].Kind != block.ElementTextRun {
		return false, false, elements
	}
	content := elements[0].Content
	if !strings.HasPrefix(content, "[") || len(content) < 3 || content[2] != ']' {
		return false, false, elements
	}
	marker := content[1]
	if marker != ' ' && marker != 'x' && marker != 'X' {
		return false, false, elements
	}
	done = marker == 'x' || marker == 'X'
	rest := strings.TrimPrefix(content[3:], " ")
	out := make([]block.Element, 0, len(elements))
	if rest != "" {
		e := elements[0]
		e.Content = rest
		out = append(out, e)
	}
	out = append(out, elements[1:]...)
	if len(out) == 0 {
		out = append(out, block.TextRun(""))
	}
	return done, true, out
}

// convertParagraph handles a plain (non-list, non-quote) paragraph. If
// it contains images, it is split into an interleaved sequence of Text
// and Image/File blocks in document order, matching the original
// converter's _process_inline_content behavior.
func convertParagraph(n ast.Node, source []byte, resolver ResourceResolver) []*block.Block {
	segments := splitOnImages(n, source, resolver)
	if len(segments) == 0 {
		t := block.New(block.TypeText)
		t.Elements = []block.Element{block.TextRun("")}
		return []*block.Block{t}
	}
	return segments
}

func inlineElements(n ast.Node, source []byte) []block.Element {
	elements := collectInline(n, source, block.Style{})
	if len(elements) == 0 {
		return []block.Element{block.TextRun("")}
	}
	return elements
}

// splitOnImages walks n's direct inline children in order, flushing the
// accumulated run of TextRun elements into a Text block whenever an
// Image is encountered, so text-before/text-after an image stay on
// their respective sides of it instead of merging across images.
func splitOnImages(n ast.Node, source []byte, resolver ResourceResolver) []*block.Block {
	var out []*block.Block
	var pending []block.Element

	flush := func() {
		if len(pending) == 0 {
			return
		}
		t := block.New(block.TypeText)
		t.Elements = pending
		out = append(out, t)
		pending = nil
	}

	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Kind() == ast.KindImage {
			flush()
			img := c.(*ast.Image)
			handleImage(string(img.Destination), string(textOf(c, source)), resolver, &out)
			continue
		}
		pending = append(pending, inlineChildElements(c, source, block.Style{})...)
	}
	flush()
	return out
}

// inlineChildElements converts a single inline node (not its children
// directly, but the node itself) into elements, recursing through
// collectInline for styled containers. It is the shared leaf/container
// dispatch used by both splitOnImages and collectInline's own walk.
func inlineChildElements(c ast.Node, source []byte, style block.Style) []block.Element {
	switch c.Kind() {
	case ast.KindText:
		t := c.(*ast.Text)
		var els []block.Element
		content := string(t.Segment.Value(source))
		if content != "" {
			els = append(els, styledOrPlain(content, style))
		}
		if t.SoftLineBreak() || t.HardLineBreak() {
			els = append(els, block.TextRun("\n"))
		}
		return els
	case ast.KindString:
		return []block.Element{styledOrPlain(string(c.(*ast.String).Value), style)}
	case ast.KindEmphasis:
		em := c.(*ast.Emphasis)
		s := style
		if em.Level == 1 {
			s.Italic = true
		} else {
			s.Bold = true
		}
		return collectInline(c, source, s)
	case east.KindStrikethrough:
		s := style
		s.Strikethrough = true
		return collectInline(c, source, s)
	case ast.KindCodeSpan:
		s := style
		s.InlineCode = true
		return collectInline(c, source, s)
	case ast.KindLink:
		l := c.(*ast.Link)
		s := style
		s.LinkURL = string(l.Destination)
		return collectInline(c, source, s)
	case ast.KindAutoLink:
		al := c.(*ast.AutoLink)
		return []block.Element{block.StyledTextRun(string(al.URL(source)), block.Style{LinkURL: string(al.URL(source))})}
	case ast.KindImage:
		// Only handled by splitOnImages; dropped when reached here
		// (nested inside an emphasis/link run), matching the original
		// converter's lack of a nested-image case.
		return nil
	default:
		return collectInline(c, source, style)
	}
}

// collectInline walks n's inline children, accumulating styled TextRun
// elements (headings, list items, quotes, table cells -- every context
// except a plain top-level paragraph, which uses splitOnImages instead
// so it can interleave Image/File blocks). Images here are not
// representable inline and are dropped, matching the original
// converter's lack of an image case in its non-paragraph text builder.
func collectInline(n ast.Node, source []byte, style block.Style) (elements []block.Element) {
	var walk func(node ast.Node, style block.Style)
	walk = func(node ast.Node, style block.Style) {
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			switch c.Kind() {
			case ast.KindText:
				t := c.(*ast.Text)
				content := string(t.Segment.Value(source))
				if content != "" {
					elements = append(elements, styledOrPlain(content, style))
				}
				if t.SoftLineBreak() || t.HardLineBreak() {
					elements = append(elements, block.TextRun("\n"))
				}
			case ast.KindString:
				elements = append(elements, styledOrPlain(string(c.(*ast.String).Value), style))
			case ast.KindEmphasis:
				em := c.(*ast.Emphasis)
				s := style
				if em.Level == 1 {
					s.Italic = true
				} else {
					s.Bold = true
				}
				walk(c, s)
			case east.KindStrikethrough:
				s := style
				s.Strikethrough = true
				walk(c, s)
			case ast.KindCodeSpan:
				s := style
				s.InlineCode = true
				walk(c, s)
			case ast.KindLink:
				l := c.(*ast.Link)
				s := style
				s.LinkURL = string(l.Destination)
				walk(c, s)
			case ast.KindAutoLink:
				al := c.(*ast.AutoLink)
				elements = append(elements, block.StyledTextRun(string(al.URL(source)), block.Style{LinkURL: string(al.URL(source))}))
			case ast.KindImage:
				// Not representable inline outside a plain paragraph; drop.
			default:
				walk(c, style)
			}
		}
	}
	walk(n, style)
	return elements
}

func styledOrPlain(content string, style block.Style) block.Element {
	if style.IsZero() {
		return block.TextRun(content)
	}
	return block.StyledTextRun(content, style)
}

func textOf(n ast.Node, source []byte) []byte {
	var sb strings.Builder
	var walk func(ast.Node)
	walk = func(node ast.Node) {
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				sb.Write(t.Segment.Value(source))
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return []byte(sb.String())
}

// handleImage resolves an image/file reference via resolver and
// appends the resulting Image/File block to extra, or -- on an
// unresolved reference -- falls back to literal Markdown image syntax
// embedded as a Text block, per spec §7 (content conversion failure:
// "an unresolvable resource reference is logged and the image syntax
// is preserved as inline text").
func handleImage(dest, alt string, resolver ResourceResolver, extra *[]*block.Block) {
	var localPath string
	ok := false
	if resolver != nil {
		localPath, ok = resolver.Resolve(dest)
	}
	if !ok {
		t := block.New(block.TypeText)
		t.Elements = []block.Element{block.TextRun("![" + alt + "](" + dest + ")")}
		*extra = append(*extra, t)
		return
	}

	ext := strings.ToLower(strings.TrimPrefix(extOf(localPath), "."))
	if mediaExtensions[ext] {
		f := block.New(block.TypeFile)
		f.AssetToken = localPath
		f.Resolved = false
		*extra = append(*extra, f)
		return
	}
	img := block.New(block.TypeImage)
	img.AssetToken = localPath
	img.Resolved = false
	*extra = append(*extra, img)
}

func extOf(p string) string {
	idx := strings.LastIndexByte(p, '.')
	if idx < 0 {
		return ""
	}
	return p[idx+1:]
}

func linesText(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// convertTable builds a Table block with row_size*column_size TableCell
// children in row-major order, each wrapping exactly one Text block
// (invariant 4).
func convertTable(n ast.Node, source []byte) *block.Block {
	var rows [][]*block.Block
	colCount := 0
	for row := n.FirstChild(); row != nil; row = row.NextSibling() {
		switch row.Kind() {
		case east.KindTableHeader, east.KindTableRow:
			var cells []*block.Block
			for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
				els := collectInline(cell, source, block.Style{})
				if len(els) == 0 {
					els = []block.Element{block.TextRun("")}
				}
				cellText := block.New(block.TypeText)
				cellText.Elements = els
				tc := block.New(block.TypeTableCell)
				tc.Children = []*block.Block{cellText}
				cells = append(cells, tc)
			}
			if len(cells) > colCount {
				colCount = len(cells)
			}
			rows = append(rows, cells)
		}
	}
	if len(rows) == 0 || colCount == 0 {
		return nil
	}

	tbl := block.New(block.TypeTable)
	tbl.Table = block.TableProperty{RowSize: len(rows), ColumnSize: colCount}
	for _, cells := range rows {
		for len(cells) < colCount {
			empty := block.New(block.TypeText)
			empty.Elements = []block.Element{block.TextRun("")}
			tc := block.New(block.TypeTableCell)
			tc.Children = []*block.Block{empty}
			cells = append(cells, tc)
		}
		tbl.Children = append(tbl.Children, cells...)
	}
	return tbl
}
