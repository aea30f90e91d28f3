package media

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreSaveAndOpenRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("a caption-worthy image payload")
	filename, err := store.Save("attachments", ".jpg", data)
	require.NoError(t, err)
	require.Contains(t, filename, ".jpg")

	f, err := store.Open("attachments", filename)
	require.NoError(t, err)
	defer f.Close()

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestStoreSaveIsContentAddressedAndIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("identical bytes")
	first, err := store.Save("attachments", ".png", data)
	require.NoError(t, err)
	second, err := store.Save("attachments", ".png", data)
	require.NoError(t, err)
	require.Equal(t, first, second, "identical content should resolve to the same filename")
}

func TestStoreDefaultsCategoryWhenEmpty(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	filename, err := store.Save("", "", []byte("x"))
	require.NoError(t, err)
	require.NotEmpty(t, filename)

	_, err = store.Open("misc", filename)
	require.NoError(t, err)
}

func TestStoreSanitizesPathTraversalSegments(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	filename, err := store.Save("../../etc", ".txt", []byte("payload"))
	require.NoError(t, err)

	path := store.Path("../../etc", filename)
	require.NotContains(t, path, "..")
}
