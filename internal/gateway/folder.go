package gateway

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// FolderEntry is one child of a remote folder listing.
type FolderEntry struct {
	Name  string
	Type  string // "folder" | "docx" | other file kinds
	Token string
}

// ListFolder implements spec §4.1 list_folder.
func (c *Client) ListFolder(ctx context.Context, folderToken string) ([]FolderEntry, error) {
	var out []FolderEntry
	pageToken := ""
	for {
		body := map[string]any{"folder_token": folderToken, "page_size": 200}
		if pageToken != "" {
			body["page_token"] = pageToken
		}
		resp, err := c.call(ctx, Request{Method: "GET", Path: "/open-apis/drive/v1/files", Body: body})
		if err != nil {
			return nil, errors.Wrapf(err, "list folder %s", folderToken)
		}
		data, _ := resp.Data.(map[string]any)
		if files, ok := data["files"].([]any); ok {
			for _, raw := range files {
				m, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				out = append(out, FolderEntry{
					Name:  strOf(m["name"]),
					Type:  strOf(m["type"]),
					Token: strOf(m["token"]),
				})
			}
		}
		next, _ := data["next_page_token"].(string)
		if next == "" {
			break
		}
		pageToken = next
	}
	return out, nil
}

// CreateFolder implements spec §4.1 create_folder.
func (c *Client) CreateFolder(ctx context.Context, parentToken, name string) (string, error) {
	resp, err := c.call(ctx, Request{
		Method: "POST",
		Path:   "/open-apis/drive/v1/files/create_folder",
		Body:   map[string]any{"folder_token": parentToken, "name": name},
	})
	if err != nil {
		return "", errors.Wrapf(err, "create folder %s/%s", parentToken, name)
	}
	token, _ := resp.Data.(map[string]any)["token"].(string)
	return token, nil
}

// DeleteFile implements spec §4.1 delete_file.
func (c *Client) DeleteFile(ctx context.Context, token, kind string) error {
	_, err := c.call(ctx, Request{
		Method: "DELETE",
		Path:   fmt.Sprintf("/open-apis/drive/v1/files/%s", token),
		Body:   map[string]any{"type": kind},
	})
	return errors.Wrapf(err, "delete %s %s", kind, token)
}
