package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cedarlabs/vaultsync/internal/block"
)

var frontMatterPattern = regexp.MustCompile(`(?s)^---[ \t]*\r?\n(.*?)\r?\n---[ \t]*(\r?\n|$)`)

// extractFrontMatter splits a YAML front-matter block (delimited by
// "---" ... "---") off the top of text, decoding it via yaml.Node to
// preserve declaration order (invariant 6 requires the keys to be
// emitted in their original order, which a map[string]any would lose).
// ok is false when no front matter is present.
func extractFrontMatter(text string) (remaining string, pairs []kv, ok bool) {
	loc := frontMatterPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, nil, false
	}
	fmText := text[loc[2]:loc[3]]
	remaining = text[loc[1]:]

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(fmText), &doc); err != nil || len(doc.Content) == 0 {
		return text, nil, false
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return text, nil, false
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		val := mapping.Content[i+1]
		pairs = append(pairs, kv{key: key.Value, value: scalarString(val)})
	}
	return remaining, pairs, true
}

type kv struct {
	key   string
	value string
}

// scalarString renders a YAML scalar/sequence node back to a flat
// string suitable for the Quote block's value column. Round-tripping
// exact YAML formatting is explicitly out of scope (spec §1 non-goals:
// no byte-identical whitespace guarantee).
func scalarString(n *yaml.Node) string {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Value
	case yaml.SequenceNode:
		parts := make([]string, len(n.Content))
		for i, c := range n.Content {
			parts[i] = scalarString(c)
		}
		return strings.Join(parts, ", ")
	default:
		out, err := yaml.Marshal(n)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(out))
	}
}

// frontMatterBlock builds the Quote block described in spec §3
// invariant 6: each key emitted bold, followed by its value, keys in
// declaration order.
func frontMatterBlock(pairs []kv) *block.Block {
	b := block.New(block.TypeQuote)
	for i, p := range pairs {
		b.Elements = append(b.Elements, block.StyledTextRun(fmt.Sprintf("%s: ", p.key), block.Style{Bold: true}))
		value := p.value
		if i < len(pairs)-1 {
			value += "\n"
		}
		b.Elements = append(b.Elements, block.TextRun(value))
	}
	return b
}
