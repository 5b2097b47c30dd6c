package markdown

import (
	"fmt"
	"strings"

	"github.com/cedarlabs/vaultsync/internal/block"
)

// Downloader is the capability the emitter depends on to turn an
// Image/File block's remote asset token back into a local, vault-relative
// path (spec §4.4). A failed download falls back to the "download
// failed" marker the original converter emits; with no Downloader, or
// for a block not yet Resolved, the AssetToken is emitted as the path.
type Downloader interface {
	Download(token string) (relativePath string, ok bool)
}

const downloadFailedMarker = "下载失败"

// Emit renders a block tree back to Markdown, the inverse of Parse for
// the block types §4.3 produces. Blank-line policy: exactly one blank
// line between a non-heading block and a following heading, and runs of
// blank lines collapsed to at most one (§4.4).
func Emit(blocks []*block.Block, downloader Downloader) string {
	lines := emitSiblings(blocks, 0, downloader)
	return normalizeBlankLines(strings.Join(lines, "\n"))
}

func emitSiblings(blocks []*block.Block, depth int, downloader Downloader) []string {
	var out []string
	orderedCounter := 0
	for i, b := range blocks {
		if b.Type != block.TypeOrdered {
			orderedCounter = 0
		}
		if i > 0 && b.Type.HeadingLevel() > 0 {
			out = append(out, "")
		}
		out = append(out, emitBlock(b, depth, downloader, &orderedCounter)...)
	}
	return out
}

func emitBlock(b *block.Block, depth int, downloader Downloader, orderedCounter *int) []string {
	indent := strings.Repeat("  ", depth)

	switch {
	case b.Type.HeadingLevel() > 0:
		return []string{strings.Repeat("#", b.Type.HeadingLevel()) + " " + emitElements(b.Elements)}

	case b.Type == block.TypeText:
		return []string{indent + emitElements(b.Elements)}

	case b.Type == block.TypeQuote:
		return emitQuote(b, indent)

	case b.Type == block.TypeDivider:
		return []string{"---"}

	case b.Type == block.TypeCode:
		return emitCode(b)

	case b.Type == block.TypeBullet:
		lines := []string{indent + "- " + emitElements(b.Elements)}
		return append(lines, emitSiblings(b.Children, depth+1, downloader)...)

	case b.Type == block.TypeOrdered:
		*orderedCounter++
		lines := []string{indent + fmt.Sprintf("%d. ", *orderedCounter) + emitElements(b.Elements)}
		return append(lines, emitSiblings(b.Children, depth+1, downloader)...)

	case b.Type == block.TypeTodo:
		mark := " "
		if b.Todo.Done {
			mark = "x"
		}
		lines := []string{indent + fmt.Sprintf("- [%s] ", mark) + emitElements(b.Elements)}
		return append(lines, emitSiblings(b.Children, depth+1, downloader)...)

	case b.Type == block.TypeImage:
		return []string{indent + emitAsset(b, downloader, true)}

	case b.Type == block.TypeFile:
		return []string{indent + emitAsset(b, downloader, false)}

	case b.Type == block.TypeTable:
		return emitTable(b)

	case b.Type == block.TypePage:
		return emitSiblings(b.Children, depth, downloader)

	default:
		return nil
	}
}

func emitQuote(b *block.Block, indent string) []string {
	text := emitElements(b.Elements)
	var out []string
	for _, line := range strings.Split(text, "\n") {
		out = append(out, indent+"> "+line)
	}
	return out
}

func emitCode(b *block.Block) []string {
	fence := "```" + fenceInfo(b.Code.Language)
	content := plainElementsText(b.Elements)
	lines := []string{fence}
	lines = append(lines, strings.Split(content, "\n")...)
	lines = append(lines, "```")
	return lines
}

func fenceInfo(name string) string {
	if name == "" || name == "plain text" {
		return ""
	}
	return name
}

func emitAsset(b *block.Block, downloader Downloader, image bool) string {
	path := b.AssetToken
	ok := true
	if b.Resolved && downloader != nil {
		path, ok = downloader.Download(b.AssetToken)
	}
	if !ok {
		return fmt.Sprintf("![%s](%s)", downloadFailedMarker, b.AssetToken)
	}
	if image {
		return fmt.Sprintf("![](%s)", path)
	}
	return fmt.Sprintf("[%s](%s)", fileBaseName(path), path)
}

func fileBaseName(p string) string {
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

func emitTable(b *block.Block) []string {
	cols := b.Table.ColumnSize
	rows := b.Table.RowSize
	if cols == 0 || rows == 0 {
		return nil
	}
	var out []string
	for r := 0; r < rows; r++ {
		cells := make([]string, cols)
		for c := 0; c < cols; c++ {
			idx := r*cols + c
			if idx >= len(b.Children) {
				continue
			}
			cells[c] = emitCell(b.Children[idx])
		}
		out = append(out, "| "+strings.Join(cells, " | ")+" |")
		if r == 0 {
			sep := make([]string, cols)
			for c := range sep {
				sep[c] = "---"
			}
			out = append(out, "| "+strings.Join(sep, " | ")+" |")
		}
	}
	return out
}

func emitCell(cell *block.Block) string {
	if len(cell.Children) == 0 {
		return ""
	}
	text := emitElements(cell.Children[0].Elements)
	text = strings.ReplaceAll(text, "|", "\\|")
	return strings.ReplaceAll(text, "\n", " ")
}

// emitElements renders a TextRun/MentionUser/MentionDoc/Reminder sequence
// back to inline Markdown, applying style wrapping per element.
func emitElements(elements []block.Element) string {
	var sb strings.Builder
	for _, e := range elements {
		sb.WriteString(emitElement(e))
	}
	return sb.String()
}

func plainElementsText(elements []block.Element) string {
	var sb strings.Builder
	for _, e := range elements {
		if e.Kind == block.ElementTextRun {
			sb.WriteString(e.Content)
		}
	}
	return sb.String()
}

func emitElement(e block.Element) string {
	switch e.Kind {
	case block.ElementMentionUser:
		return "@" + e.UserID
	case block.ElementMentionDoc:
		return fmt.Sprintf("[%s](%s)", e.DocToken, e.URL)
	case block.ElementReminder:
		return ""
	default:
		return applyStyle(e.Content, e.Style)
	}
}

func applyStyle(content string, s block.Style) string {
	if content == "" {
		return content
	}
	switch {
	case s.Bold && s.Italic:
		content = "***" + content + "***"
	case s.Bold:
		content = "**" + content + "**"
	case s.Italic:
		content = "*" + content + "*"
	}
	if s.Strikethrough {
		content = "~~" + content + "~~"
	}
	if s.InlineCode {
		content = "`" + content + "`"
	}
	if s.LinkURL != "" {
		content = fmt.Sprintf("[%s](%s)", content, s.LinkURL)
	}
	return content
}

func normalizeBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		isBlank := strings.TrimSpace(line) == ""
		if isBlank && blank {
			continue
		}
		out = append(out, line)
		blank = isBlank
	}
	return strings.Join(out, "\n")
}
