package docsync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cedarlabs/vaultsync/internal/gateway"
)

type fakeResolver struct{}

func (fakeResolver) Resolve(ref string) (string, bool) { return "", false }

type scriptedTransport struct {
	t        *testing.T
	handlers map[string]func(req gateway.Request) gateway.Response
	calls    []string
}

func (f *scriptedTransport) Do(ctx context.Context, req gateway.Request) (gateway.Response, error) {
	f.calls = append(f.calls, req.Method+" "+req.Path)
	h, ok := f.handlers[req.Method+" "+req.Path]
	require.True(f.t, ok, "unscripted call: %s %s", req.Method, req.Path)
	return h(req), nil
}

type fixedToken struct{}

func (fixedToken) Token() (string, error) { return "tok", nil }

func newTestClient(t *testing.T, transport *scriptedTransport) *gateway.Client {
	t.Helper()
	c, err := gateway.New(transport, fixedToken{}, "", nil)
	require.NoError(t, err)
	return c
}

func TestRunUploadsNewLocalFile(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(localPath, []byte("# Hello\n"), 0o644))

	transport := &scriptedTransport{t: t, handlers: map[string]func(gateway.Request) gateway.Response{
		"POST /open-apis/drive/v1/metas/batch_query": func(req gateway.Request) gateway.Response {
			return gateway.Response{Data: map[string]any{"metas": []any{}}}
		},
		"GET /open-apis/docx/v1/documents/doc1/blocks/doc1/children": func(req gateway.Request) gateway.Response {
			return gateway.Response{Data: map[string]any{"items": []any{}}}
		},
		"POST /open-apis/docx/v1/documents/doc1/blocks/doc1/children": func(req gateway.Request) gateway.Response {
			return gateway.Response{}
		},
	}}
	client := newTestClient(t, transport)

	m := New(localPath, "doc1", client, fakeResolver{}, "20260731_000000")
	outcome, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeUploaded, outcome)
}

func TestRunDownloadsWhenRemoteIsNewer(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(localPath, []byte("old content\n"), 0o644))
	old := time.Now().Add(-1 * time.Hour)
	require.NoError(t, os.Chtimes(localPath, old, old))

	transport := &scriptedTransport{t: t, handlers: map[string]func(gateway.Request) gateway.Response{
		"POST /open-apis/drive/v1/metas/batch_query": func(req gateway.Request) gateway.Response {
			return gateway.Response{Data: map[string]any{"metas": []any{
				map[string]any{"doc_token": "doc1", "doc_type": "docx", "latest_modify_time": float64(time.Now().Unix())},
			}}}
		},
		"GET /open-apis/docx/v1/documents/doc1/blocks/doc1/children": func(req gateway.Request) gateway.Response {
			return gateway.Response{Data: map[string]any{"items": []any{}}}
		},
	}}
	client := newTestClient(t, transport)

	m := New(localPath, "doc1", client, fakeResolver{}, "20260731_000000")
	outcome, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeDownloaded, outcome)

	backups, _ := filepath.Glob(localPath + ".bak.*")
	require.Len(t, backups, 1, "cloud-to-local overwrite must back up the original file")
}

func TestRunForceSkipsRemoteNewerCheck(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(localPath, []byte("# Hello\n"), 0o644))

	transport := &scriptedTransport{t: t, handlers: map[string]func(gateway.Request) gateway.Response{
		"POST /open-apis/drive/v1/metas/batch_query": func(req gateway.Request) gateway.Response {
			return gateway.Response{Data: map[string]any{"metas": []any{
				map[string]any{"doc_token": "doc1", "doc_type": "docx", "latest_modify_time": float64(time.Now().Unix() + 10_000)},
			}}}
		},
		"GET /open-apis/docx/v1/documents/doc1/blocks/doc1/children": func(req gateway.Request) gateway.Response {
			return gateway.Response{Data: map[string]any{"items": []any{}}}
		},
		"POST /open-apis/docx/v1/documents/doc1/blocks/doc1/children": func(req gateway.Request) gateway.Response {
			return gateway.Response{}
		},
	}}
	client := newTestClient(t, transport)

	m := New(localPath, "doc1", client, fakeResolver{}, "20260731_000000")
	m.Force = true
	outcome, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeUploaded, outcome)
}

func TestRunOverwriteClearsAndReadds(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(localPath, []byte("# Hello\n"), 0o644))

	var added bool
	transport := &scriptedTransport{t: t, handlers: map[string]func(gateway.Request) gateway.Response{
		"POST /open-apis/drive/v1/metas/batch_query": func(req gateway.Request) gateway.Response {
			return gateway.Response{Data: map[string]any{"metas": []any{}}}
		},
		"GET /open-apis/docx/v1/documents/doc1/blocks/doc1/children": func(req gateway.Request) gateway.Response {
			return gateway.Response{Data: map[string]any{"items": []any{}}}
		},
		"POST /open-apis/docx/v1/documents/doc1/blocks/doc1/children": func(req gateway.Request) gateway.Response {
			added = true
			return gateway.Response{}
		},
	}}
	client := newTestClient(t, transport)

	m := New(localPath, "doc1", client, fakeResolver{}, "20260731_000000")
	m.Overwrite = true
	outcome, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeUploaded, outcome)
	require.True(t, added, "overwrite must re-add blocks after clearing")
}
