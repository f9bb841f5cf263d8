package decryption_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/decryption"
	"github.com/dmitrijs2005/storagecrypt/internal/documents"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/process"
	"github.com/dmitrijs2005/storagecrypt/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encryptedFile(t *testing.T, parent *documents.Document, name, content string) *documents.Document {
	t.Helper()
	ctx := context.Background()
	d, err := parent.CreateChild(ctx, name, "text/plain", "")
	require.NoError(t, err)
	n, err := d.Encrypt(ctx, bytes.NewReader([]byte(content)), nil)
	require.NoError(t, err)
	require.NoError(t, d.UpdateContentInfo(ctx, n, testutil.Epoch))
	return d
}

func TestRun_RecreatesTree(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, root := env.AddAccount(t, models.BackendS3, "work", testutil.NewFakeStorage())

	dir, err := root.CreateChild(ctx, "docs", models.FolderMimeType, "")
	require.NoError(t, err)
	sub, err := dir.CreateChild(ctx, "sub", models.FolderMimeType, "")
	require.NoError(t, err)
	encryptedFile(t, dir, "a.txt", "alpha")
	encryptedFile(t, sub, "b.txt", "bravo")
	single := encryptedFile(t, root, "c.txt", "charlie")

	out := afero.NewMemMapFs()
	p := decryption.New(env.Documents, out, nil, nil, nil)
	res, err := p.Run(ctx, decryption.Request{Documents: []int64{dir.ID, single.ID}, Target: "/out"})
	require.NoError(t, err)
	assert.Zero(t, res.ErrorCount())
	assert.Len(t, res.Success(), 5)

	for path, want := range map[string]string{
		"/out/docs/a.txt":     "alpha",
		"/out/docs/sub/b.txt": "bravo",
		"/out/c.txt":          "charlie",
	} {
		got, err := afero.ReadFile(out, path)
		require.NoError(t, err, path)
		assert.Equal(t, want, string(got), path)
	}

	info, err := out.Stat("/out/c.txt")
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(testutil.Epoch))
}

func TestRun_NotDownloadedIsPerItem(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, root := env.AddAccount(t, models.BackendS3, "work", testutil.NewFakeStorage())

	missing, err := root.CreateChild(ctx, "later.bin", "", "")
	require.NoError(t, err)
	ok := encryptedFile(t, root, "now.txt", "ready")

	out := afero.NewMemMapFs()
	res, err := decryption.New(env.Documents, out, nil, nil, nil).
		Run(ctx, decryption.Request{Documents: []int64{missing.ID, ok.ID, 9999}, Target: "/out"})
	require.NoError(t, err)
	require.Equal(t, 2, res.ErrorCount())
	assert.Equal(t, "/s3 (work)/later.bin", res.Errors()[0].Element)
	assert.ErrorIs(t, res.Errors()[0], common.ErrSourceFileOpen)
	assert.ErrorIs(t, res.Errors()[1], common.ErrNotFound)
	assert.Len(t, res.Success(), 1)

	exists, err := afero.Exists(out, "/out/later.bin")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRun_Canceled(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, root := env.AddAccount(t, models.BackendS3, "work", testutil.NewFakeStorage())
	f := encryptedFile(t, root, "a.txt", "alpha")

	control := &process.Control{}
	control.Cancel()
	res, err := decryption.New(env.Documents, afero.NewMemMapFs(), control, nil, nil).
		Run(ctx, decryption.Request{Documents: []int64{f.ID}, Target: "/out"})
	require.NoError(t, err)
	assert.Empty(t, res.Success())
}
