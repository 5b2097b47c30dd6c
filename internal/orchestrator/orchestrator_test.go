package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cedarlabs/vaultsync/internal/config"
	"github.com/cedarlabs/vaultsync/internal/gateway"
	"github.com/cedarlabs/vaultsync/internal/syncstate"
)

type fakeResolver struct{}

func (fakeResolver) Resolve(ref string) (string, bool) { return "", false }

type scriptedTransport struct {
	t        *testing.T
	handlers map[string]func(req gateway.Request) gateway.Response
}

func (f *scriptedTransport) Do(ctx context.Context, req gateway.Request) (gateway.Response, error) {
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

func emptyListFolder(path string) func(gateway.Request) gateway.Response {
	return func(req gateway.Request) gateway.Response {
		return gateway.Response{Data: map[string]any{"files": []any{}}}
	}
}

func noMetaHandler(req gateway.Request) gateway.Response {
	return gateway.Response{Data: map[string]any{"metas": []any{}}}
}

func emptyBlocksHandler(req gateway.Request) gateway.Response {
	return gateway.Response{Data: map[string]any{"items": []any{}}}
}

// TestCollectTasksCreatesRemoteDocumentForNewLocalFile covers the plain
// "local file with no remote counterpart" branch.
func TestCollectTasksCreatesRemoteDocumentForNewLocalFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.md"), []byte("# hi\n"), 0o644))

	transport := &scriptedTransport{t: t, handlers: map[string]func(gateway.Request) gateway.Response{
		"GET /open-apis/drive/v1/files": emptyListFolder(dir),
		"POST /open-apis/docx/v1/documents": func(req gateway.Request) gateway.Response {
			return gateway.Response{Data: map[string]any{"document_id": "newdoc"}}
		},
	}}
	client := newTestClient(t, transport)

	o := &Orchestrator{
		LocalRoot: dir, CloudRootToken: "root",
		Client: client, State: mustOpenState(t, dir), Config: config.Default(), Resolver: fakeResolver{},
	}
	tasks, err := o.collectTasks(context.Background(), dir, "root")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, TaskSync, tasks[0].Kind)
	require.True(t, tasks[0].IsNew)
	require.Equal(t, "newdoc", tasks[0].DocToken)
}

// TestCollectTasksPairsExistingFileWithRemoteDoc covers the "already
// synced on both sides" branch -- no remote mutation calls expected.
func TestCollectTasksPairsExistingFileWithRemoteDoc(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.md"), []byte("# hi\n"), 0o644))

	transport := &scriptedTransport{t: t, handlers: map[string]func(gateway.Request) gateway.Response{
		"GET /open-apis/drive/v1/files": func(req gateway.Request) gateway.Response {
			return gateway.Response{Data: map[string]any{"files": []any{
				map[string]any{"name": "note", "type": "docx", "token": "doc1"},
			}}}
		},
	}}
	client := newTestClient(t, transport)

	o := &Orchestrator{
		LocalRoot: dir, CloudRootToken: "root",
		Client: client, State: mustOpenState(t, dir), Config: config.Default(), Resolver: fakeResolver{},
	}
	tasks, err := o.collectTasks(context.Background(), dir, "root")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, TaskSync, tasks[0].Kind)
	require.False(t, tasks[0].IsNew)
	require.Equal(t, "doc1", tasks[0].DocToken)
}

// TestCollectTasksEmitsDownloadForRemoteOnlyDocument covers the
// "remote entry with no local counterpart" branch (spec §4.8 scenario 6).
func TestCollectTasksEmitsDownloadForRemoteOnlyDocument(t *testing.T) {
	dir := t.TempDir()

	transport := &scriptedTransport{t: t, handlers: map[string]func(gateway.Request) gateway.Response{
		"GET /open-apis/drive/v1/files": func(req gateway.Request) gateway.Response {
			return gateway.Response{Data: map[string]any{"files": []any{
				map[string]any{"name": "remote-only", "type": "docx", "token": "doc9"},
			}}}
		},
	}}
	client := newTestClient(t, transport)

	o := &Orchestrator{
		LocalRoot: dir, CloudRootToken: "root",
		Client: client, State: mustOpenState(t, dir), Config: config.Default(), Resolver: fakeResolver{},
	}
	tasks, err := o.collectTasks(context.Background(), dir, "root")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, TaskSync, tasks[0].Kind)
	require.Equal(t, "doc9", tasks[0].DocToken)
	require.Equal(t, filepath.Join(dir, "remote-only.md"), tasks[0].LocalPath)
}

// TestCollectTasksDetectsLocalDeletion covers the "locally deleted,
// known to sync state" branch -- a delete_cloud task must be emitted.
func TestCollectTasksDetectsLocalDeletion(t *testing.T) {
	dir := t.TempDir()
	state := mustOpenState(t, dir)
	require.NoError(t, state.Update(filepath.Join(dir, "gone.md"), "doc5", syncstate.KindDocument, 1))

	transport := &scriptedTransport{t: t, handlers: map[string]func(gateway.Request) gateway.Response{
		"GET /open-apis/drive/v1/files": func(req gateway.Request) gateway.Response {
			return gateway.Response{Data: map[string]any{"files": []any{
				map[string]any{"name": "gone", "type": "docx", "token": "doc5"},
			}}}
		},
	}}
	client := newTestClient(t, transport)

	o := &Orchestrator{
		LocalRoot: dir, CloudRootToken: "root", VaultRoot: dir,
		Client: client, State: state, Config: config.Default(), Resolver: fakeResolver{},
	}
	tasks, err := o.collectTasks(context.Background(), dir, "root")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, TaskDeleteCloud, tasks[0].Kind)
	require.Equal(t, "doc5", tasks[0].DocToken)
	require.Equal(t, syncstate.KindDocument, tasks[0].StateKind)
	require.Equal(t, filepath.Join(dir, "gone.md"), tasks[0].LocalPath)
}

// TestCollectTasksSkipsProtectedRemoteNames ensures the deny list
// suppresses deletion even when the entry is unknown to sync state.
func TestCollectTasksSkipsProtectedRemoteNames(t *testing.T) {
	dir := t.TempDir()

	transport := &scriptedTransport{t: t, handlers: map[string]func(gateway.Request) gateway.Response{
		"GET /open-apis/drive/v1/files": func(req gateway.Request) gateway.Response {
			return gateway.Response{Data: map[string]any{"files": []any{
				map[string]any{"name": "assets", "type": "folder", "token": "assetsTok"},
			}}}
		},
	}}
	client := newTestClient(t, transport)

	o := &Orchestrator{
		LocalRoot: dir, CloudRootToken: "root", VaultRoot: dir,
		Client: client, State: mustOpenState(t, dir), Config: config.Default(), Resolver: fakeResolver{},
	}
	tasks, err := o.collectTasks(context.Background(), dir, "root")
	require.NoError(t, err)
	require.Empty(t, tasks, "protected remote names must never be queued for deletion")
}

// TestExecuteTaskDeleteCloudRemovesFolderStateRecursively verifies that
// a TaskDeleteCloud for a folder entry cascades via RemoveDirectory
// rather than RemoveByToken.
func TestExecuteTaskDeleteCloudRemovesFolderStateRecursively(t *testing.T) {
	dir := t.TempDir()
	state := mustOpenState(t, dir)
	nestedAbs := filepath.Join(dir, "oldfolder", "child.md")
	require.NoError(t, state.Update(filepath.Join(dir, "oldfolder"), "folderTok", syncstate.KindFolder, 1))
	require.NoError(t, state.Update(nestedAbs, "childTok", syncstate.KindDocument, 1))

	transport := &scriptedTransport{t: t, handlers: map[string]func(gateway.Request) gateway.Response{
		"DELETE /open-apis/drive/v1/files/folderTok": func(req gateway.Request) gateway.Response {
			return gateway.Response{}
		},
	}}
	client := newTestClient(t, transport)

	o := &Orchestrator{Client: client, State: state, Config: config.Default(), Resolver: fakeResolver{}}
	o.executeTask(context.Background(), Task{
		Kind: TaskDeleteCloud, DocToken: "folderTok", FileType: "folder",
		LocalPath: filepath.Join(dir, "oldfolder"), StateKind: syncstate.KindFolder,
	})

	require.Equal(t, 1, o.stats.DeletedCloud)
	_, ok := state.GetByToken("childTok")
	require.False(t, ok, "deleting a folder's remote token must cascade into nested sync-state entries")
}

func mustOpenState(t *testing.T, root string) *syncstate.Store {
	t.Helper()
	s, err := syncstate.Open(root)
	require.NoError(t, err)
	return s
}
