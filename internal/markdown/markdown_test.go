package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedarlabs/vaultsync/internal/block"
)

type fakeResolver struct {
	known map[string]string
}

func (f fakeResolver) Resolve(ref string) (string, bool) {
	p, ok := f.known[ref]
	return p, ok
}

func TestParseHeadingsAndParagraph(t *testing.T) {
	blocks := Parse("# Title\n\nSome text with **bold** and *italic*.\n", nil)
	require.Len(t, blocks, 2)
	assert.Equal(t, block.TypeHeading1, blocks[0].Type)
	assert.Equal(t, "Title", plainElementsText(blocks[0].Elements))
	assert.Equal(t, block.TypeText, blocks[1].Type)
}

func TestParseChecklistBecomesTodo(t *testing.T) {
	blocks := Parse("- [ ] write tests\n- [x] ship it\n- plain item\n", nil)
	require.Len(t, blocks, 3)
	assert.Equal(t, block.TypeTodo, blocks[0].Type)
	assert.False(t, blocks[0].Todo.Done)
	assert.Equal(t, block.TypeTodo, blocks[1].Type)
	assert.True(t, blocks[1].Todo.Done)
	assert.Equal(t, block.TypeBullet, blocks[2].Type)
}

func TestParseNestedList(t *testing.T) {
	md := "- parent\n  - child one\n  - child two\n"
	blocks := Parse(md, nil)
	require.Len(t, blocks, 1)
	require.Len(t, blocks[0].Children, 2)
	assert.Equal(t, "child one", plainElementsText(blocks[0].Children[0].Elements))
}

func TestParseFencedCode(t *testing.T) {
	blocks := Parse("```go\nfmt.Println(1)\n```\n", nil)
	require.Len(t, blocks, 1)
	assert.Equal(t, block.TypeCode, blocks[0].Type)
	assert.Equal(t, "go", blocks[0].Code.Language)
	assert.Equal(t, "fmt.Println(1)", plainElementsText(blocks[0].Elements))
}

func TestParseFrontMatterBecomesQuote(t *testing.T) {
	md := "---\ntitle: hello\ntags: a, b\n---\nBody text.\n"
	blocks := Parse(md, nil)
	require.True(t, len(blocks) >= 2)
	assert.Equal(t, block.TypeQuote, blocks[0].Type)
}

func TestParseImageSplitsParagraph(t *testing.T) {
	resolver := fakeResolver{known: map[string]string{"pic.png": "/vault/assets/pic.png"}}
	blocks := Parse("before ![alt](pic.png) after\n", resolver)
	require.Len(t, blocks, 3)
	assert.Equal(t, block.TypeText, blocks[0].Type)
	assert.Equal(t, block.TypeImage, blocks[1].Type)
	assert.Equal(t, "/vault/assets/pic.png", blocks[1].AssetToken)
	assert.Equal(t, block.TypeText, blocks[2].Type)
}

func TestParseWikiLinkImage(t *testing.T) {
	resolver := fakeResolver{known: map[string]string{"my%20file.pdf": "/vault/my file.pdf"}}
	blocks := Parse("![[my file.pdf]]\n", resolver)
	require.Len(t, blocks, 1)
	assert.Equal(t, block.TypeFile, blocks[0].Type)
}

func TestParseTable(t *testing.T) {
	md := "| a | b |\n| --- | --- |\n| 1 | 2 |\n"
	blocks := Parse(md, nil)
	require.Len(t, blocks, 1)
	tbl := blocks[0]
	assert.Equal(t, block.TypeTable, tbl.Type)
	assert.Equal(t, 2, tbl.Table.RowSize)
	assert.Equal(t, 2, tbl.Table.ColumnSize)
	require.Len(t, tbl.Children, 4)
	assert.Equal(t, "a", plainElementsText(tbl.Children[0].Children[0].Elements))
}

func TestEmitRoundTripsHeadingAndList(t *testing.T) {
	b1 := block.New(block.TypeHeading2)
	b1.Elements = []block.Element{block.TextRun("Section")}
	item := block.New(block.TypeBullet)
	item.Elements = []block.Element{block.TextRun("one")}
	out := Emit([]*block.Block{b1, item}, nil)
	assert.Contains(t, out, "## Section")
	assert.Contains(t, out, "- one")
}

func TestEmitTodoMarker(t *testing.T) {
	todo := block.New(block.TypeTodo)
	todo.Todo.Done = true
	todo.Elements = []block.Element{block.TextRun("done thing")}
	out := Emit([]*block.Block{todo}, nil)
	assert.Contains(t, out, "- [x] done thing")
}

func TestEmitBlankLineBeforeHeading(t *testing.T) {
	p := block.New(block.TypeText)
	p.Elements = []block.Element{block.TextRun("para")}
	h := block.New(block.TypeHeading1)
	h.Elements = []block.Element{block.TextRun("Head")}
	out := Emit([]*block.Block{p, h}, nil)
	assert.Equal(t, "para\n\n# Head", out)
}

func TestParseDeterministic(t *testing.T) {
	md := "# T\n\n- a\n- b\n\n| x | y |\n| --- | --- |\n| 1 | 2 |\n"
	a := Parse(md, nil)
	b := Parse(md, nil)
	assert.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, block.Hash(a[i]), block.Hash(b[i]))
	}
}
