package gateway

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// UploadAsset implements spec §4.1's deduplicated upload pipeline:
// hash the file, check the in-memory/persisted cache, and only call
// the network on a miss.
func (c *Client) UploadAsset(ctx context.Context, localPath, parent string) (string, error) {
	hash, err := hashFile(localPath)
	if err != nil {
		return "", errors.Wrap(err, "hash asset for upload")
	}
	if token, ok := c.cache.Lookup(hash); ok {
		return token, nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrapf(err, "open asset %s", localPath)
	}
	defer f.Close()

	resp, err := c.call(ctx, Request{
		Method: "POST",
		Path:   "/open-apis/drive/v1/medias/upload_all",
		Body: map[string]any{
			"parent_node": parent,
			"file_name":   baseName(localPath),
			"file":        f,
		},
	})
	if err != nil {
		return "", errors.Wrapf(err, "upload asset %s", localPath)
	}
	token, _ := resp.Data.(map[string]any)["file_token"].(string)
	if token == "" {
		return "", errors.Errorf("upload asset %s: empty token in response", localPath)
	}
	if err := c.cache.Store(hash, token); err != nil {
		return token, errors.Wrap(err, "persist asset cache entry")
	}
	return token, nil
}

// DownloadAsset fetches remoteToken's content and writes it to
// destPath.
func (c *Client) DownloadAsset(ctx context.Context, remoteToken, destPath string) error {
	resp, err := c.call(ctx, Request{
		Method: "GET",
		Path:   fmt.Sprintf("/open-apis/drive/v1/medias/%s/download", remoteToken),
	})
	if err != nil {
		return errors.Wrapf(err, "download asset %s", remoteToken)
	}
	r, ok := resp.Data.(io.Reader)
	if !ok {
		return errors.Errorf("download asset %s: response carried no file body", remoteToken)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return errors.Wrapf(err, "create %s", destPath)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return errors.Wrapf(err, "write %s", destPath)
	}
	return nil
}

func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}
