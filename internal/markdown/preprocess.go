package markdown

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	wikiLinkPattern   = regexp.MustCompile(`!\[\[(.*?)(?:\|(.*?))?\]\]`)
	listItemPattern   = regexp.MustCompile(`^(\s*)([-*+]|\d+\.)\s+`)
	weakIndentPattern = regexp.MustCompile(`^( {2,3})(\d+\.|[-*+])\s+`)
	fencePattern      = regexp.MustCompile("^\\s*```")
)

// preprocess applies the rewrite rules spec §4.3 requires before the
// CommonMark parse: wiki-link rewriting, weak-indent normalization, and
// the paragraph-termination footgun fix. Front matter has already been
// stripped out by the caller.
func preprocess(text string) string {
	text = convertWikiLinks(text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	inCodeBlock := false

	for i, line := range lines {
		if fencePattern.MatchString(line) {
			inCodeBlock = !inCodeBlock
		}

		if !inCodeBlock {
			if m := weakIndentPattern.FindStringSubmatch(line); m != nil {
				needed := 4 - len(m[1])
				if needed > 0 {
					line = strings.Repeat(" ", needed) + line
				}
			}
		}

		if i > 0 && !inCodeBlock {
			prev := lines[i-1]
			if listItemPattern.MatchString(prev) {
				isCurrList := listItemPattern.MatchString(line)
				isCurrEmpty := strings.TrimSpace(line) == ""
				isCurrIndented := strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
				if !isCurrList && !isCurrEmpty && !isCurrIndented {
					out = append(out, "")
				}
			}
		}

		out = append(out, line)
	}

	return strings.Join(out, "\n")
}

// convertWikiLinks rewrites Obsidian's ![[file|alt]] image syntax into
// standard Markdown image syntax, URL-encoding spaces in the path the
// way the original ecosystem idiom expects.
func convertWikiLinks(text string) string {
	return wikiLinkPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := wikiLinkPattern.FindStringSubmatch(m)
		filename := strings.TrimSpace(sub[1])
		alt := strings.TrimSpace(sub[2])
		filename = strings.ReplaceAll(filename, " ", "%20")
		// Other characters that url.PathEscape would mangle (e.g. "/")
		// must survive untouched since the result is still a path.
		if decoded, err := url.QueryUnescape(filename); err == nil {
			filename = strings.ReplaceAll(decoded, " ", "%20")
		}
		return "![" + alt + "](" + filename + ")"
	})
}
