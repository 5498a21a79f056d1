package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prodrefs/internal/crawler"
	"github.com/JakeFAU/prodrefs/internal/storage/local"
)

func TestNewPreparesBaseDir(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "images")
	_, err := local.New(local.Config{BaseDir: root})
	require.NoError(t, err)
	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file is removed")

	_, err = local.New(local.Config{BaseDir: "  "})
	require.ErrorContains(t, err, "base directory is required")

	file := filepath.Join(t.TempDir(), "images.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = local.New(local.Config{BaseDir: file})
	require.ErrorContains(t, err, "not a directory")
}

func TestNewRejectsReadOnlyDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not apply to root")
	}
	dir := t.TempDir()
	// #nosec G302 -- read-only on purpose.
	require.NoError(t, os.Chmod(dir, 0o500))
	// #nosec G302 -- restore so TempDir cleanup works.
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	_, err := local.New(local.Config{BaseDir: dir})
	require.ErrorContains(t, err, "not writable")
}

func TestPutObjectWritesImages(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := local.New(local.Config{BaseDir: root})
	require.NoError(t, err)

	cases := map[string][]byte{
		"tokopedia/kaos-polos/kaos-polos-pria/01_kaos-polos-pria_3f2a9c1d0e.jpg": []byte("jpeg-1"),
		"tokopedia/sepatu/02_sepatu_aa00bb11cc.webp":                             []byte("webp"),
	}
	for rel, body := range cases {
		loc, err := store.PutObject(context.Background(), rel, "image/jpeg", bytes.NewReader(body))
		require.NoError(t, err, rel)
		assert.Equal(t, filepath.Join(root, rel), loc)

		// #nosec G304 -- reading back from the test's temp dir.
		got, err := os.ReadFile(loc)
		require.NoError(t, err)
		assert.Equal(t, body, got)
		_, err = os.Stat(loc + ".part")
		assert.True(t, os.IsNotExist(err), "temp file is renamed away")
	}

	_, err = store.PutObject(context.Background(), "", "image/jpeg", bytes.NewReader(nil))
	require.ErrorContains(t, err, "path is required")
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.jpg", "image/jpeg", bytes.NewReader([]byte("x")))
	require.ErrorContains(t, err, "path traversal")
	_, _, err = store.Stat(context.Background(), "../../etc/passwd")
	require.ErrorContains(t, err, "path traversal")
}

func TestStat(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()
	const rel = "tokopedia/kaos/01_kaos_abc.jpg"

	_, _, err = store.Stat(ctx, rel)
	require.ErrorIs(t, err, crawler.ErrNotFound)

	written, err := store.PutObject(ctx, rel, "image/jpeg", bytes.NewReader([]byte("jpeg")))
	require.NoError(t, err)

	loc, size, err := store.Stat(ctx, rel)
	require.NoError(t, err)
	assert.Equal(t, written, loc)
	assert.Equal(t, int64(4), size)

	_, _, err = store.Stat(ctx, "tokopedia")
	require.ErrorContains(t, err, "is a directory")
	assert.NotErrorIs(t, err, crawler.ErrNotFound)
}
