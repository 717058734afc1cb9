package lnutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCreateDir covers nested creation, existing directories and paths that
// cannot be created.
func TestCreateDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	nested := filepath.Join(root, "logs", "mainnet")
	require.NoError(t, CreateDir(nested, 0700))

	info, err := os.Stat(nested)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	// Creating it again is a no-op.
	require.NoError(t, CreateDir(nested, 0700))

	// A regular file in the way fails.
	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))
	require.Error(t, CreateDir(filepath.Join(file, "sub"), 0700))

	// So does a dangling symlink.
	link := filepath.Join(root, "dangling")
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), link))
	err = CreateDir(link, 0700)
	require.Error(t, err)
	require.Contains(t, err.Error(), "mounted?")
}
