package blobstore

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), slog.Default())
	require.NoError(t, err)
	return s
}

func TestStore_PutGet(t *testing.T) {
	s := newTestStore(t)

	size, err := s.Put("u1/abc-a.mp4", Metadata{
		ContentType: "video/mp4",
		Context:     `{"history":"focus on lighting"}`,
	}, strings.NewReader("fake video bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("fake video bytes")), size)

	body, meta, err := s.Get("u1/abc-a.mp4")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "fake video bytes", string(data))
	assert.Equal(t, "video/mp4", meta.ContentType)
	assert.Equal(t, `{"history":"focus on lighting"}`, meta.Context)
	assert.Equal(t, size, meta.Size)
	assert.False(t, meta.WrittenAt.IsZero())
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Get("u1/abc-missing.mp4")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestStore_Exists(t *testing.T) {
	s := newTestStore(t)

	ok, err := s.Exists("u1/abc-a.mp4")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Put("u1/abc-a.mp4", Metadata{ContentType: "video/mp4"}, strings.NewReader("x"))
	require.NoError(t, err)

	ok, err = s.Exists("u1/abc-a.mp4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_Overwrite(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Put("u1/abc-a.mp4", Metadata{ContentType: "video/mp4"}, strings.NewReader("first"))
	require.NoError(t, err)
	_, err = s.Put("u1/abc-a.mp4", Metadata{ContentType: "video/mp4"}, strings.NewReader("second"))
	require.NoError(t, err)

	body, _, err := s.Get("u1/abc-a.mp4")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestStore_RejectsEscapingKeys(t *testing.T) {
	s := newTestStore(t)

	keys := []string{
		"",
		"/etc/passwd",
		"../outside",
		"u1/../../outside",
		"u1/./x",
		"u1//x",
		`u1\x`,
	}

	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			_, err := s.Put(key, Metadata{}, strings.NewReader("x"))
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}
