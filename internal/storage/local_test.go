package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalStorage(t *testing.T) {
	tests := []struct {
		name        string
		basePath    string
		shouldError bool
	}{
		{
			name:     "valid path",
			basePath: t.TempDir(),
		},
		{
			name:     "non-existent path",
			basePath: filepath.Join(t.TempDir(), "nested", "path"),
		},
		{
			name:        "invalid path (file instead of directory)",
			basePath:    createTempFile(t),
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, err := NewLocalStorage(tt.basePath)

			if tt.shouldError {
				assert.Error(t, err)
				assert.Nil(t, storage)
				return
			}
			require.NoError(t, err)
			info, err := os.Stat(tt.basePath)
			require.NoError(t, err)
			assert.True(t, info.IsDir())
		})
	}
}

func TestLocalStorage_StoreAndRetrieve(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		path    string
		content string
	}{
		{name: "gif", path: "gif/cat.gif", content: "GIF89a..."},
		{name: "firmware image", path: "ota/firmware.bin", content: string([]byte{0xE9, 0x00, 0x01, 0xFF})},
		{name: "empty", path: "gif/empty.gif", content: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := storage.Store(ctx, tt.path, strings.NewReader(tt.content))
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.content)), n)

			reader, err := storage.Retrieve(ctx, tt.path)
			require.NoError(t, err)
			defer reader.Close()

			content, err := io.ReadAll(reader)
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(content))
		})
	}
}

func TestLocalStorage_StoreFailureLeavesNothing(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	n, err := storage.Store(ctx, "ota/firmware.bin", &failingReader{data: []byte("some data"), failAfter: 5})
	assert.Error(t, err)
	assert.Equal(t, int64(5), n)

	exists, err := storage.Exists(ctx, "ota/firmware.bin")
	require.NoError(t, err)
	assert.False(t, exists)

	objects, err := storage.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, objects)

	entries, err := os.ReadDir(filepath.Join(storage.basePath, "ota"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp.")
	}
}

func TestLocalStorage_StoreCancelledMidway(t *testing.T) {
	storage := setupTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())

	reader := &cancelAfterReader{cancel: cancel, data: strings.Repeat("x", 64)}
	_, err := storage.Store(ctx, "gif/big.gif", reader)

	assert.ErrorIs(t, err, context.Canceled)
	exists, _ := storage.Exists(context.Background(), "gif/big.gif")
	assert.False(t, exists)
}

func TestLocalStorage_PathsStayInsideBase(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	_, err := storage.Store(ctx, "../../escape.gif", strings.NewReader("x"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(storage.basePath, "escape.gif"))
	assert.NoError(t, err, "parent references are cleaned to the base directory")
}

func TestLocalStorage_RetrieveMissing(t *testing.T) {
	storage := setupTestStorage(t)

	reader, err := storage.Retrieve(context.Background(), "gif/none.gif")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, reader)

	_, err = storage.GetSize(context.Background(), "gif/none.gif")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_Delete(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	_, err := storage.Store(ctx, "gif/a.gif", strings.NewReader("aaa"))
	require.NoError(t, err)

	require.NoError(t, storage.Delete(ctx, "gif/a.gif"))
	exists, err := storage.Exists(ctx, "gif/a.gif")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, storage.Delete(ctx, "gif/a.gif"), "deleting twice is fine")
}

func TestLocalStorage_List(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	files := map[string]string{
		"gif/a.gif":        "a",
		"gif/b.gif":        "bb",
		"ota/firmware.bin": "ccc",
	}
	for path, content := range files {
		_, err := storage.Store(ctx, path, strings.NewReader(content))
		require.NoError(t, err)
	}

	gifs, err := storage.List(ctx, "gif")
	require.NoError(t, err)
	assert.ElementsMatch(t, []Object{{Path: "gif/a.gif", Size: 1}, {Path: "gif/b.gif", Size: 2}}, gifs)

	all, err := storage.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := storage.List(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLocalStorage_ConcurrentWrites(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(index int) {
			defer wg.Done()
			path := fmt.Sprintf("gif/%d.gif", index)
			_, err := storage.Store(ctx, path, strings.NewReader(fmt.Sprintf("frame %d", index)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	objects, err := storage.List(ctx, "gif")
	require.NoError(t, err)
	assert.Len(t, objects, numGoroutines)
}

func TestLocalStorage_ContextCancellation(t *testing.T) {
	storage := setupTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := storage.Store(ctx, "cancelled.gif", strings.NewReader("content"))
	assert.Equal(t, context.Canceled, err)

	reader, err := storage.Retrieve(ctx, "cancelled.gif")
	assert.Equal(t, context.Canceled, err)
	assert.Nil(t, reader)
}

func TestLocalStorage_SlowStoreDoesNotBlockOthers(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	_, err := storage.Store(ctx, "gif/cat.gif", strings.NewReader("GIF89a"))
	require.NoError(t, err)

	pr, pw := io.Pipe()
	stored := make(chan error, 1)
	go func() {
		_, err := storage.Store(ctx, "ota/firmware.bin", pr)
		stored <- err
	}()
	_, err = pw.Write([]byte("first chunk"))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		objects, err := storage.List(ctx, "gif")
		assert.NoError(t, err)
		assert.Len(t, objects, 1)

		size, err := storage.GetSize(ctx, "gif/cat.gif")
		assert.NoError(t, err)
		assert.Equal(t, int64(6), size)

		_, err = storage.Store(ctx, "gif/dog.gif", strings.NewReader("GIF89a"))
		assert.NoError(t, err)

		exists, err := storage.Exists(ctx, "ota/firmware.bin")
		assert.NoError(t, err)
		assert.False(t, exists, "an unfinished write is not visible")
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("operations blocked behind an unfinished Store")
	}

	_, err = pw.Write([]byte(" second chunk"))
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	require.NoError(t, <-stored)

	size, err := storage.GetSize(ctx, "ota/firmware.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(len("first chunk second chunk")), size)
}

// Helper functions

func setupTestStorage(t *testing.T) *LocalStorage {
	storage, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return storage
}

func createTempFile(t *testing.T) string {
	tempFile, err := os.CreateTemp(t.TempDir(), "test")
	require.NoError(t, err)
	tempFile.Close()
	return tempFile.Name()
}

// failingReader fails after reading a certain number of bytes
type failingReader struct {
	data      []byte
	pos       int
	failAfter int
}

func (fr *failingReader) Read(p []byte) (n int, err error) {
	if fr.pos >= fr.failAfter {
		return 0, io.ErrUnexpectedEOF
	}
	if fr.pos >= len(fr.data) {
		return 0, io.EOF
	}

	end := min(len(fr.data), fr.failAfter)
	n = copy(p, fr.data[fr.pos:end])
	fr.pos += n
	return n, nil
}

// cancelAfterReader cancels its context after the first read
type cancelAfterReader struct {
	cancel context.CancelFunc
	data   string
	done   bool
}

func (r *cancelAfterReader) Read(p []byte) (int, error) {
	if r.done {
		return copy(p, r.data), nil
	}
	r.done = true
	r.cancel()
	return copy(p, r.data), nil
}
