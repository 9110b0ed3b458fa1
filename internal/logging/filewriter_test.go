package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogRotator_ShouldRotate(t *testing.T) {
	tests := []struct {
		name        string
		maxSizeMB   int
		currentSize int64
		want        bool
	}{
		{"below threshold", 10, 5 * 1024 * 1024, false},
		{"exactly at threshold", 10, 10 * 1024 * 1024, true},
		{"above threshold", 10, 15 * 1024 * 1024, true},
		{"zero size", 10, 0, false},
		{"disabled", 0, 50 * 1024 * 1024, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewLogRotator("test.log", tt.maxSizeMB, 3)
			assert.Equal(t, tt.want, r.ShouldRotate(tt.currentSize))
		})
	}
}

func TestLogRotator_RotateShiftsBackups(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(base, []byte("current"), 0644))
	require.NoError(t, os.WriteFile(base+".1", []byte("one"), 0644))
	require.NoError(t, os.WriteFile(base+".2", []byte("two"), 0644))

	r := NewLogRotator(base, 1, 2)
	require.NoError(t, r.Rotate())

	_, err := os.Stat(base)
	assert.True(t, os.IsNotExist(err))

	got, err := os.ReadFile(base + ".1")
	require.NoError(t, err)
	assert.Equal(t, "current", string(got))

	got, err = os.ReadFile(base + ".2")
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))

	_, err = os.Stat(base + ".3")
	assert.True(t, os.IsNotExist(err))
}

func TestLogRotator_ZeroBackupsRemovesFile(t *testing.T) {
	base := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(base, []byte("x"), 0644))

	require.NoError(t, NewLogRotator(base, 1, 0).Rotate())

	_, err := os.Stat(base)
	assert.True(t, os.IsNotExist(err))
}

func TestFileWriter_RotatesOnSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	fw, err := NewFileWriter(path, 1, 1)
	require.NoError(t, err)
	defer fw.Close()

	chunk := bytes.Repeat([]byte("x"), 64*1024)
	for i := 0; i < 17; i++ {
		_, err := fw.Write(chunk)
		require.NoError(t, err)
	}
	require.NoError(t, fw.Sync())

	info, err := os.Stat(path + ".1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.Size(), int64(1024*1024))

	_, err = fw.Write([]byte("after rotation\n"))
	require.NoError(t, err)
	require.NoError(t, fw.Sync())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after rotation\n", string(got))
}

func TestFileWriter_WriteAfterClose(t *testing.T) {
	fw, err := NewFileWriter(filepath.Join(t.TempDir(), "app.log"), 1, 1)
	require.NoError(t, err)
	require.NoError(t, fw.Close())
	require.NoError(t, fw.Close())

	_, err = fw.Write([]byte("late"))
	assert.ErrorIs(t, err, errWriterClosed)
}
