package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrationsSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.sql", "0001_a.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600))
	}

	files, err := listMigrations(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "0001_a.sql", filepath.Base(files[0]))
	assert.Equal(t, "0002_b.sql", filepath.Base(files[1]))
}
