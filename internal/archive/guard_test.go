package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplimindcc/backend-sub000/internal/errdefs"
)

type zipEntry struct {
	name    string
	content []byte
}

func makeZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write(e.content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestValidate_AcceptsPlainFiles(t *testing.T) {
	guard := NewGuard(1024)
	data := makeZip(t,
		zipEntry{name: "src/main.go", content: []byte("package main")},
		zipEntry{name: "docs/notes.txt", content: []byte("notes")},
	)

	bundle, err := guard.Validate(data)

	require.NoError(t, err)
	assert.Equal(t, 2, bundle.Len())

	content, err := bundle.Files()[0].Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("package main"), content)
}

func TestValidate_SkipsDirectoryEntries(t *testing.T) {
	guard := NewGuard(1024)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("src/")
	require.NoError(t, err)
	w, err := zw.Create("src/app.go")
	require.NoError(t, err)
	_, err = w.Write([]byte("package app"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	bundle, err := guard.Validate(buf.Bytes())

	require.NoError(t, err)
	assert.Equal(t, 1, bundle.Len())
	assert.Equal(t, "src/app.go", bundle.Files()[0].Path)
}

func TestValidate_RejectsNestedArchive(t *testing.T) {
	guard := NewGuard(1024)
	data := makeZip(t,
		zipEntry{name: "payload.zip", content: []byte("tiny")},
	)

	_, err := guard.Validate(data)

	assert.True(t, errors.Is(err, errdefs.ErrUnsafeArchive))
}

func TestValidate_RejectsNestedArchiveRegardlessOfCase(t *testing.T) {
	guard := NewGuard(1024)
	data := makeZip(t,
		zipEntry{name: "inner/Payload.ZIP", content: []byte("x")},
	)

	_, err := guard.Validate(data)

	assert.True(t, errors.Is(err, errdefs.ErrUnsafeArchive))
}

func TestValidate_RejectsReadmeCollision(t *testing.T) {
	guard := NewGuard(1024)
	data := makeZip(t,
		zipEntry{name: "readme.md", content: []byte("mine")},
	)

	_, err := guard.Validate(data)

	assert.True(t, errors.Is(err, errdefs.ErrValidation))
}

func TestValidate_RejectsOversizedArchive(t *testing.T) {
	guard := NewGuard(64)
	data := makeZip(t,
		zipEntry{name: "small.txt", content: bytes.Repeat([]byte("a"), 32)},
		zipEntry{name: "big.txt", content: bytes.Repeat([]byte("b"), 128)},
	)

	_, err := guard.Validate(data)

	assert.True(t, errors.Is(err, errdefs.ErrUnsafeArchive))
}

func TestValidate_RejectsPathEscape(t *testing.T) {
	guard := NewGuard(1024)
	data := makeZip(t,
		zipEntry{name: "../outside.txt", content: []byte("x")},
	)

	_, err := guard.Validate(data)

	assert.True(t, errors.Is(err, errdefs.ErrUnsafeArchive))
}

func TestValidate_RejectsGarbage(t *testing.T) {
	guard := NewGuard(1024)

	_, err := guard.Validate([]byte("this is not a zip"))

	assert.True(t, errors.Is(err, errdefs.ErrMalformedArchive))
}
