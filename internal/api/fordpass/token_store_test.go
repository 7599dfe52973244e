package fordpass

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store := NewFileStore(path)
	ctx := context.Background()

	in := &Token{AccessToken: "a", RefreshToken: "r", ExpiresIn: 3600, ExpiryDate: 1700003600.125}
	require.NoError(t, store.Save(ctx, in))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	out, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// 覆盖写入
	in2 := &Token{AccessToken: "b", RefreshToken: "r2", ExpiresIn: 60, ExpiryDate: 1700000060}
	require.NoError(t, store.Save(ctx, in2))
	out, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in2, out)
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestFileStore_LoadMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "garbage", content: "not json"},
		{name: "empty", content: ""},
		{name: "truncated", content: `{"access_token":"a"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "token.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			_, err := NewFileStore(path).Load(context.Background())
			assert.ErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func TestFileStore_ClearPartial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")
	legacy := filepath.Join(dir, "token.txt")
	require.NoError(t, os.WriteFile(legacy, []byte("{}"), 0600))

	store := NewFileStore(path, filepath.Join(dir, "fordpass_token.txt"), legacy)
	require.NoError(t, store.Clear(context.Background()))
	assert.NoFileExists(t, legacy)
}

func TestNewFileStore_Defaults(t *testing.T) {
	store := NewFileStore("")
	assert.Equal(t, DefaultTokenFile, store.Path())
	assert.Equal(t, DefaultLegacyTokenFiles, store.legacyPaths)
}
