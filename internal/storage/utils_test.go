package storage

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpFile(t *testing.T) {
	e, path := newTestEngine(t)
	require.NoError(t, e.AddRecord(cup()))
	require.NoError(t, e.AddRecord(item(2, "Plate", 3, 1)))
	require.NoError(t, e.AddRecord(item(3, "Bowl", 4, 1)))
	require.NoError(t, e.DeleteRecordByID(2))

	t.Run("all slots", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, DumpFile(&buf, path, 0))

		out := buf.String()
		assert.Contains(t, out, `Signature:   "PRODDB1" (valid: true)`)
		assert.Contains(t, out, "Records:     2")
		assert.Contains(t, out, "Slot #0 @128  Product[ID=1, Name=Cup, Price=9.99, Brand=5, Category=2]")
		assert.Contains(t, out, "Slot #1 @468  <free>")
		assert.Contains(t, out, "Slot #2 @808  Product[ID=3, Name=Bowl, Price=4.00, Brand=1, Category=0]")
		assert.True(t, strings.HasSuffix(out, "Total: 3 slots, 2 live records\n"))
	})

	t.Run("head", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, DumpFile(&buf, path, 1))

		out := buf.String()
		assert.Contains(t, out, "Slot #0")
		assert.NotContains(t, out, "Slot #1")
		assert.True(t, strings.HasSuffix(out, "Total: 1 slots, 1 live records\n"))
	})

	t.Run("missing file", func(t *testing.T) {
		err := DumpFile(&bytes.Buffer{}, filepath.Join(t.TempDir(), "none.db"), 0)
		require.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("short header", func(t *testing.T) {
		short := filepath.Join(t.TempDir(), "short.db")
		require.NoError(t, os.WriteFile(short, []byte("PRODDB1"), 0o644))
		require.Error(t, DumpFile(&bytes.Buffer{}, short, 0))
	})
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("a much longer previous body"), 0o644))

	require.NoError(t, copyFile(src, dst, 0o600))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	t.Run("missing source leaves destination alone", func(t *testing.T) {
		err := copyFile(filepath.Join(dir, "nope"), dst, 0o600)
		require.ErrorIs(t, err, fs.ErrNotExist)

		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(got))
	})
}

func TestSameFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(a, nil, 0o644))

	assert.True(t, sameFile(a, a))
	assert.True(t, sameFile(a, filepath.Join(dir, ".", "a")))
	assert.False(t, sameFile(a, filepath.Join(dir, "b")))
	assert.False(t, sameFile(filepath.Join(dir, "b"), filepath.Join(dir, "b")))
}
