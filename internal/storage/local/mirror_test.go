// Package local_test tests the local filesystem mirror.
package local_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tdsharvest/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("CreatesRoot", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "iso", "nested")
		m, err := local.New(local.Config{Root: root})
		require.NoError(t, err)
		assert.Equal(t, root, m.Root())

		info, err := os.Stat(root)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("ExistingRoot", func(t *testing.T) {
		root := t.TempDir()
		_, err := local.New(local.Config{Root: root})
		require.NoError(t, err)
		_, err = local.New(local.Config{Root: root})
		require.NoError(t, err)
	})

	t.Run("MissingRoot", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("RootIsAFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{Root: file})
		assert.Error(t, err)
	})
}

func TestEnsureDirAndWriteFile(t *testing.T) {
	root := t.TempDir()
	m, err := local.New(local.Config{Root: root})
	require.NoError(t, err)

	dir, err := m.EnsureDir("storms/2005")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "storms", "2005"), dir)

	path, err := m.WriteFile("storms/2005/a.nc.xml", []byte("<iso/>"))
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<iso/>", string(content))

	_, err = m.EnsureDir("")
	require.NoError(t, err, "root itself is allowed")
}

func TestPathEscapesRoot(t *testing.T) {
	m, err := local.New(local.Config{Root: t.TempDir()})
	require.NoError(t, err)

	_, err = m.EnsureDir("../outside")
	require.ErrorIs(t, err, local.ErrPathEscapesRoot)

	_, err = m.WriteFile("a/../../x.xml", []byte("x"))
	require.ErrorIs(t, err, local.ErrPathEscapesRoot)
}

func TestWriteFileWithoutParent(t *testing.T) {
	m, err := local.New(local.Config{Root: t.TempDir()})
	require.NoError(t, err)

	_, err = m.WriteFile("missing/x.xml", []byte("x"))
	assert.Error(t, err)

	_, err = m.WriteFile("", []byte("x"))
	assert.Error(t, err)
}
