package markdown

import "github.com/cedarlabs/vaultsync/internal/block"

var debugTypeNames = map[block.Type]string{
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

// DebugTypeName renders a block.Type as a short label for the
// `--debug-dump` remote-tree printout (spec §12), grounded on the
// original's verify_cloud_structure block-type tags.
func DebugTypeName(t block.Type) string {
	if name, ok := debugTypeNames[t]; ok {
		return name
	}
	return "unknown"
}
