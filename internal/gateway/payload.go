package gateway

import "github.com/cedarlabs/vaultsync/internal/block"

// typeNames/typeByName give the wire-level block_type string the
// remote service uses for each block.Type, isolating internal/block
// from the remote's naming. This wire shape is a peripheral concern
// (SPEC_FULL §1 non-goals: "the concrete remote-service API wire
// format"); this file is a minimal-but-real mapping, not the thing
// under test.
var typeNames = map[block.Type]string{
	block.TypePage:      "page",
	block.TypeText:       "text",
	block.TypeHeading1:   "heading1",
	block.TypeHeading2:   "heading2",
	block.TypeHeading3:   "heading3",
	block.TypeHeading4:   "heading4",
	block.TypeHeading5:   "heading5",
	block.TypeHeading6:   "heading6",
	block.TypeHeading7:   "heading7",
	block.TypeHeading8:   "heading8",
	block.TypeHeading9:   "heading9",
	block.TypeBullet:     "bullet",
	block.TypeOrdered:    "ordered",
	block.TypeCode:       "code",
	block.TypeQuote:      "quote",
	block.TypeTodo:       "todo",
	block.TypeDivider:    "divider",
	block.TypeImage:      "image",
	block.TypeFile:       "file",
	block.TypeTable:      "table",
	block.TypeTableCell:  "table_cell",
}

var typeByName = func() map[string]block.Type {
	m := make(map[string]block.Type, len(typeNames))
	for t, name := range typeNames {
		m[name] = t
	}
	return m
}()

func toBlockPayload(b *block.Block) blockPayload {
	p := blockPayload{"block_type": typeNames[b.Type]}
	if b.ID != "" {
		p["block_id"] = b.ID
	}
	if len(b.Elements) > 0 {
		p["elements"] = toElementPayloads(b.Elements)
	}
	if b.Type == block.TypeImage || b.Type == block.TypeFile {
		p["token"] = b.AssetToken
	}
	if b.Type == block.TypeCode && b.Code.Language != "" {
		p["language"] = b.Code.Language
	}
	if b.Type == block.TypeTodo {
		p["done"] = b.Todo.Done
	}
	if b.Type == block.TypeTable {
		p["row_size"] = b.Table.RowSize
		p["column_size"] = b.Table.ColumnSize
	}
	if len(b.Children) > 0 {
		children := make([]blockPayload, len(b.Children))
		for i, c := range b.Children {
			children[i] = toBlockPayload(c)
		}
		p["children"] = children
	}
	return p
}

func fromBlockPayload(p blockPayload) *block.Block {
	typeName, _ := p["block_type"].(string)
	t, ok := typeByName[typeName]
	if !ok {
		t = block.TypeText
	}
	b := block.New(t)
	if id, ok := p["block_id"].(string); ok {
		b.ID = id
	}
	if els, ok := p["elements"].([]any); ok {
		b.Elements = fromElementPayloads(els)
	}
	if tok, ok := p["token"].(string); ok {
		b.AssetToken = tok
		b.Resolved = tok != ""
	}
	if lang, ok := p["language"].(string); ok {
		b.Code.Language = lang
	}
	if done, ok := p["done"].(bool); ok {
		b.Todo.Done = done
	}
	if rs, ok := p["row_size"].(int); ok {
		b.Table.RowSize = rs
	}
	if cs, ok := p["column_size"].(int); ok {
		b.Table.ColumnSize = cs
	}
	if children, ok := p["children"].([]any); ok {
		for _, raw := range children {
			if cp, ok := raw.(map[string]any); ok {
				b.Children = append(b.Children, fromBlockPayload(blockPayload(cp)))
			}
		}
	}
	return b
}

func toElementPayloads(elements []block.Element) []map[string]any {
	out := make([]map[string]any, len(elements))
	for i, e := range elements {
		ep := map[string]any{"kind": int(e.Kind)}
		switch e.Kind {
		case block.ElementTextRun:
			ep["content"] = e.Content
			ep["style"] = map[string]any{
				"bold":          e.Style.Bold,
				"italic":        e.Style.Italic,
				"strikethrough": e.Style.Strikethrough,
				"underline":     e.Style.Underline,
				"inline_code":   e.Style.InlineCode,
				"foreground":    e.Style.Foreground,
				"background":    e.Style.Background,
				"link_url":      e.Style.LinkURL,
			}
		case block.ElementMentionUser:
			ep["user_id"] = e.UserID
		case block.ElementMentionDoc:
			ep["doc_token"] = e.DocToken
			ep["obj_type"] = e.ObjType
			ep["url"] = e.URL
		case block.ElementReminder:
			ep["reminder_user"] = e.ReminderUser
			ep["expire_time_ms"] = e.ExpireTimeMS
			ep["notify_time_ms"] = e.NotifyTimeMS
		}
		out[i] = ep
	}
	return out
}

func fromElementPayloads(raw []any) []block.Element {
	out := make([]block.Element, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		kind, _ := m["kind"].(int)
		e := block.Element{Kind: block.ElementKind(kind)}
		switch e.Kind {
		case block.ElementTextRun:
			e.Content, _ = m["content"].(string)
			if s, ok := m["style"].(map[string]any); ok {
				e.Style = block.Style{
					Bold:          boolOf(s["bold"]),
					Italic:        boolOf(s["italic"]),
					Strikethrough: boolOf(s["strikethrough"]),
					Underline:     boolOf(s["underline"]),
					InlineCode:    boolOf(s["inline_code"]),
					Foreground:    strOf(s["foreground"]),
					Background:    strOf(s["background"]),
					LinkURL:       strOf(s["link_url"]),
				}
			}
		case block.ElementMentionUser:
			e.UserID, _ = m["user_id"].(string)
		case block.ElementMentionDoc:
			e.DocToken, _ = m["doc_token"].(string)
			e.ObjType, _ = m["obj_type"].(string)
			e.URL, _ = m["url"].(string)
		case block.ElementReminder:
			e.ReminderUser, _ = m["reminder_user"].(string)
		}
		out = append(out, e)
	}
	return out
}

func boolOf(v any) bool {
	b, _ := v.(bool)
	return b
}

func strOf(v any) string {
	s, _ := v.(string)
	return s
}
