package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutWritesFileAndReturnsURI(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.Put(context.Background(), "runs/abc/doc.pdf", "application/pdf", []byte("%PDF body"))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "runs/abc/doc.pdf"), uri)

	data, err := os.ReadFile(filepath.Join(dir, "runs/abc/doc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF body", string(data))

	// No temp file left behind.
	_, err = os.Stat(filepath.Join(dir, "runs/abc/doc.pdf.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestPutRejectsPathTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../escape.pdf", "", []byte("x"))
	require.Error(t, err)
}

func TestNewCreatesMissingBaseDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "archive")
	_, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}
