package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanges_KeepsFeedOrder(t *testing.T) {
	c := NewChanges()
	c.Add(NewChange(&Document{ID: "b", Name: "tok-b"}))
	c.Add(NewDeletion("a"))
	c.Add(NewChange(&Document{ID: "c", Name: "tok-c"}))

	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].DocumentID)
	assert.Equal(t, "a", all[1].DocumentID)
	assert.True(t, all[1].Deleted)
	assert.Nil(t, all[1].Document)
	assert.Equal(t, "c", all[2].DocumentID)
}

func TestChanges_ReplaceKeepsPosition(t *testing.T) {
	c := NewChanges()
	c.Add(NewChange(&Document{ID: "a", Version: 1}))
	c.Add(NewChange(&Document{ID: "b", Version: 1}))
	c.Add(NewChange(&Document{ID: "a", Version: 2}))

	require.Equal(t, 2, c.Len())
	all := c.All()
	assert.Equal(t, "a", all[0].DocumentID)
	assert.Equal(t, int64(2), all[0].Document.Version)
}

func TestChanges_Folders(t *testing.T) {
	c := NewChanges()
	c.AddFolder(NewChange(&Document{ID: "dir/", Folder: true}))

	f, ok := c.Folder("dir/")
	require.True(t, ok)
	assert.True(t, f.Document.Folder)
	assert.True(t, c.Contains("dir/"), "folder changes are regular changes too")

	_, ok = c.Folder("missing/")
	assert.False(t, ok)
}

func TestNopProgress(t *testing.T) {
	p := NopProgress()
	p.SetMax(10)
	p.SetProgress(5)
	assert.False(t, p.IsCanceled())
}
