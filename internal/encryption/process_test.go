package encryption_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/documents"
	"github.com/dmitrijs2005/storagecrypt/internal/encryption"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/process"
	"github.com/dmitrijs2005/storagecrypt/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu       sync.Mutex
	messages []string
	max      map[int]int64
	progress map[int]int64
}

func newRecordingListener() *recordingListener {
	return &recordingListener{max: map[int]int64{}, progress: map[int]int64{}}
}

func (l *recordingListener) OnMessage(channel int, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if channel == process.ChannelItems {
		l.messages = append(l.messages, msg)
	}
}

func (l *recordingListener) OnMax(channel int, max int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.max[channel] = max
}

func (l *recordingListener) OnProgress(channel int, progress int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress[channel] = progress
}

func sourceFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fsys, name, []byte(content), 0o600))
	}
	return fsys
}

func decrypt(t *testing.T, d *documents.Document) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, d.Decrypt(context.Background(), &buf, nil))
	return buf.String()
}

func state(d *documents.Document, action models.SyncAction) models.SyncState {
	s, _ := d.SyncState(action)
	return s
}

func TestRun_FolderBeforeFile(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, root := env.AddAccount(t, models.BackendS3, "work", testutil.NewFakeStorage())
	src := sourceFs(t, map[string]string{
		"/a/b.txt":   "bravo",
		"/a/c/d.txt": "delta",
	})
	listener := newRecordingListener()

	p := encryption.New(env.Documents, src, encryption.WithListener(listener), encryption.WithClock(env.Clock))
	res, err := p.Run(ctx, encryption.Request{Paths: []string{"/a", "/a/b.txt", "/a/c"}, Destination: root.ID})
	require.NoError(t, err)
	assert.Zero(t, res.ErrorCount())
	require.Len(t, res.Success(), 4)

	assert.Equal(t, []string{"/a", "/a/c", "/a/b.txt", "/a/c/d.txt"}, listener.messages)
	assert.EqualValues(t, 4, listener.max[process.ChannelItems])
	assert.EqualValues(t, 4, listener.progress[process.ChannelItems])
	assert.EqualValues(t, 5, listener.progress[process.ChannelBytes])

	a, err := root.Child(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.True(t, a.IsFolder())
	assert.Equal(t, models.StatePlanned, state(a, models.ActionUpload))

	b, err := a.Child(ctx, "b.txt")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "bravo", decrypt(t, b))
	assert.Equal(t, "text/plain; charset=utf-8", b.MimeType)
	assert.Equal(t, models.StatePlanned, state(b, models.ActionUpload))
	assert.Greater(t, b.Size, int64(len("bravo")))

	c, err := a.Child(ctx, "c")
	require.NoError(t, err)
	d, err := c.Child(ctx, "d.txt")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "delta", decrypt(t, d))
}

func TestRun_FailedFolderPoisonsDescendants(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, root := env.AddAccount(t, models.BackendS3, "work", testutil.NewFakeStorage())
	_, err := root.CreateChild(ctx, "a", "text/plain", "")
	require.NoError(t, err)

	src := sourceFs(t, map[string]string{
		"/a/b.txt":   "bravo",
		"/a/c/d.txt": "delta",
		"/e.txt":     "echo",
	})

	p := encryption.New(env.Documents, src)
	res, err := p.Run(ctx, encryption.Request{Paths: []string{"/a", "/a/b.txt", "/a/c", "/e.txt"}, Destination: root.ID})
	require.NoError(t, err)

	failures := map[string]error{}
	for _, f := range res.Errors() {
		failures[f.Element] = f.Err
	}
	require.Len(t, failures, 4)
	assert.ErrorIs(t, failures["/a"], common.ErrTypeConflict)
	assert.ErrorIs(t, failures["/a/b.txt"], common.ErrParentFailed)
	assert.ErrorIs(t, failures["/a/c"], common.ErrParentFailed)
	assert.ErrorIs(t, failures["/a/c/d.txt"], common.ErrParentFailed)

	require.Len(t, res.Success(), 1)
	assert.Equal(t, "/e.txt", res.Success()[0].Source)
}

func TestRun_ReusesExistingDocuments(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, root := env.AddAccount(t, models.BackendS3, "work", testutil.NewFakeStorage())
	src := sourceFs(t, map[string]string{"/a/b.txt": "v1"})

	p := encryption.New(env.Documents, src)
	_, err := p.Run(ctx, encryption.Request{Paths: []string{"/a"}, Destination: root.ID})
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(src, "/a/b.txt", []byte("v2"), 0o600))
	res, err := p.Run(ctx, encryption.Request{Paths: []string{"/a"}, Destination: root.ID})
	require.NoError(t, err)
	assert.Zero(t, res.ErrorCount())

	children, err := root.Children(ctx)
	require.NoError(t, err)
	require.Len(t, children, 1)
	files, err := children[0].Children(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "v2", decrypt(t, files[0]))
}

func TestRun_FileOverFolderConflict(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, root := env.AddAccount(t, models.BackendS3, "work", testutil.NewFakeStorage())
	_, err := root.CreateChild(ctx, "x.txt", models.FolderMimeType, "")
	require.NoError(t, err)
	src := sourceFs(t, map[string]string{"/x.txt": "data"})

	res, err := encryption.New(env.Documents, src).Run(ctx, encryption.Request{Paths: []string{"/x.txt"}, Destination: root.ID})
	require.NoError(t, err)
	require.Equal(t, 1, res.ErrorCount())
	assert.ErrorIs(t, res.Errors()[0], common.ErrTypeConflict)
}

func TestRun_UnsynchronizedNeverPlansUpload(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, err := env.Documents.UpdateRoots(ctx)
	require.NoError(t, err)
	root, err := env.Documents.Root(ctx, models.BackendUnsynchronized, "")
	require.NoError(t, err)
	src := sourceFs(t, map[string]string{"/f.bin": "x"})

	res, err := encryption.New(env.Documents, src).Run(ctx, encryption.Request{Paths: []string{"/f.bin"}, Destination: root.ID})
	require.NoError(t, err)
	require.Len(t, res.Success(), 1)
	assert.Empty(t, res.Success()[0].Document.SyncStates)
}

func TestRun_KeyAliasOverride(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, root := env.AddAccount(t, models.BackendS3, "work", testutil.NewFakeStorage())
	src := sourceFs(t, map[string]string{"/d/f.bin": "x"})

	res, err := encryption.New(env.Documents, src).Run(ctx, encryption.Request{Paths: []string{"/d"}, Destination: root.ID, KeyAlias: "work"})
	require.NoError(t, err)
	for _, item := range res.Success() {
		assert.Equal(t, "work", item.Document.KeyAlias, item.Source)
	}
}

func TestRun_EncryptionFailureDeletesNewDocument(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, root := env.AddAccount(t, models.BackendS3, "work", testutil.NewFakeStorage())
	src := sourceFs(t, map[string]string{"/f.bin": "x"})

	res, err := encryption.New(env.Documents, src).Run(ctx, encryption.Request{Paths: []string{"/f.bin"}, Destination: root.ID, KeyAlias: "unknown"})
	require.NoError(t, err)
	require.Equal(t, 1, res.ErrorCount())
	assert.ErrorIs(t, res.Errors()[0], common.ErrEncryption)
	assert.ErrorIs(t, res.Errors()[0], common.ErrKeyNotFound)

	children, err := root.Children(ctx)
	require.NoError(t, err)
	assert.Empty(t, children, "partial document is removed")
}

func TestRun_MissingSourceIsPerItem(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, root := env.AddAccount(t, models.BackendS3, "work", testutil.NewFakeStorage())
	src := sourceFs(t, map[string]string{"/ok.txt": "fine"})

	res, err := encryption.New(env.Documents, src).Run(ctx, encryption.Request{Paths: []string{"/missing", "/ok.txt"}, Destination: root.ID})
	require.NoError(t, err)
	require.Equal(t, 1, res.ErrorCount())
	assert.Equal(t, "/missing", res.Errors()[0].Element)
	assert.ErrorIs(t, res.Errors()[0], common.ErrSourceFileOpen)
	assert.Len(t, res.Success(), 1)
}

func TestRun_Destination(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, root := env.AddAccount(t, models.BackendS3, "work", testutil.NewFakeStorage())
	f, err := root.CreateChild(ctx, "file", "", "")
	require.NoError(t, err)
	p := encryption.New(env.Documents, afero.NewMemMapFs())

	_, err = p.Run(ctx, encryption.Request{Destination: 12345})
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = p.Run(ctx, encryption.Request{Destination: f.ID})
	assert.ErrorIs(t, err, common.ErrTypeConflict)
}

func TestRun_CanceledBeforeFirstItem(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, root := env.AddAccount(t, models.BackendS3, "work", testutil.NewFakeStorage())
	src := sourceFs(t, map[string]string{"/a.txt": "a", "/b.txt": "b"})

	control := &process.Control{}
	control.Cancel()

	res, err := encryption.New(env.Documents, src, encryption.WithControl(control)).
		Run(ctx, encryption.Request{Paths: []string{"/a.txt", "/b.txt"}, Destination: root.ID})
	require.NoError(t, err)
	assert.Empty(t, res.Success())

	children, err := root.Children(ctx)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestRun_StoreUnavailable(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, root := env.AddAccount(t, models.BackendS3, "work", testutil.NewFakeStorage())
	env.Close(t)

	_, err := encryption.New(env.Documents, afero.NewMemMapFs()).Run(ctx, encryption.Request{Destination: root.ID})
	assert.True(t, errors.Is(err, common.ErrStoreUnavailable))
}
