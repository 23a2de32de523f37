package storage

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	n, err := s.SaveStream("student-1/photo.png", strings.NewReader("png-bytes"), 64)
	require.NoError(t, err)
	assert.EqualValues(t, 9, n)

	f, err := s.Open("student-1/photo.png")
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))

	require.NoError(t, s.Delete("student-1/photo.png"))
	_, err = s.Open("student-1/photo.png")
	assert.Error(t, err)
}

func TestLocalStorageRejectsOversizedFiles(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.SaveStream("big.bin", strings.NewReader("0123456789"), 4)
	require.Error(t, err)
	_, err = s.Open("big.bin")
	assert.Error(t, err)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.SaveStream("../escape.txt", strings.NewReader("x"), 0)
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = s.Open("/etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidPath)
}
