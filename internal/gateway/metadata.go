package gateway

import (
	"context"

	"github.com/pkg/errors"
)

// FileInfo is the subset of remote metadata C7/C8 need to decide sync
// direction and token-type routing.
type FileInfo struct {
	Token             string
	DocType           string // "docx" | "folder" | other
	LatestModifyTime  int64  // seconds or milliseconds, see ParseCloudTime
}

// GetFileInfo implements spec §4.1's metadata lookup (the Drive
// "batch_query meta" call), returning nil, nil when the token is absent
// rather than treating a missing file as an error.
func (c *Client) GetFileInfo(ctx context.Context, token string) (*FileInfo, error) {
	resp, err := c.call(ctx, Request{
		Method: "POST",
		Path:   "/open-apis/drive/v1/metas/batch_query",
		Body: map[string]any{
			"request_docs": []map[string]any{{"doc_token": token, "doc_type": "docx"}},
			"with_url":     false,
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get file info %s", token)
	}
	data, _ := resp.Data.(map[string]any)
	metas, _ := data["metas"].([]any)
	if len(metas) == 0 {
		return nil, nil
	}
	m, ok := metas[0].(map[string]any)
	if !ok {
		return nil, nil
	}
	return &FileInfo{
		Token:            strOf(m["doc_token"]),
		DocType:          strOf(m["doc_type"]),
		LatestModifyTime: int64Of(m["latest_modify_time"]),
	}, nil
}

func int64Of(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		var out int64
		for _, r := range n {
			if r < '0' || r > '9' {
				return 0
			}
			out = out*10 + int64(r-'0')
		}
		return out
	default:
		return 0
	}
}

// ParseCloudTime disambiguates the remote's last-modify timestamp,
// which is reported in seconds for some endpoints and milliseconds for
// others. Values above 10^10 are treated as milliseconds (design note,
// spec §9 — this heuristic breaks in the year 2286).
func ParseCloudTime(raw int64) int64 {
	const msThreshold = 10_000_000_000
	if raw > msThreshold {
		return raw / 1000
	}
	return raw
}
