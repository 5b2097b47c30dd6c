package block

import (
	"crypto/md5" //nolint:gosec // content-addressing only, not a security boundary; spec mandates md5 for cross-runtime hash stability
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash computes the content hash described in spec §4.5: for every
// block, md5(type || ":" || content_signature || ":" || join(",", child_hashes)).
// Styles are excluded from the signature, so two blocks that differ
// only in style hash equal and the diff treats them as unchanged.
//
// Image/File blocks mix in the Resolved bit (design note §9) so a
// freshly-parsed local placeholder never hashes equal to an uploaded
// block pointing at the same local path.
func Hash(b *Block) string {
	sig := contentSignature(b)
	childHashes := make([]string, len(b.Children))
	for i, c := range b.Children {
		childHashes[i] = Hash(c)
	}
	data := fmt.Sprintf("%d:%s:%s", b.Type, sig, strings.Join(childHashes, ","))
	sum := md5.Sum([]byte(data)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// HashAll hashes a sequence of sibling blocks, as used for the
// top-level root-child comparison in spec §4.5's linear diff.
func HashAll(blocks []*Block) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = Hash(b)
	}
	return out
}

func contentSignature(b *Block) string {
	switch {
	case b.Type.IsTextBearing():
		var sb strings.Builder
		for _, e := range b.Elements {
			if e.Kind == ElementTextRun {
				sb.WriteString(e.Content)
			}
		}
		return sb.String()
	case b.Type == TypeImage || b.Type == TypeFile:
		if b.Resolved {
			return b.AssetToken
		}
		return "unresolved:" + b.AssetToken
	case b.Type == TypeDivider:
		return ""
	default:
		// Table, TableCell, Page: content is entirely carried by children.
		return ""
	}
}
