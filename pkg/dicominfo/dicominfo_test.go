package dicominfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func mustElement(t *testing.T, tg tag.Tag, value string) *dicom.Element {
	t.Helper()

	el, err := dicom.NewElement(tg, []string{value})
	require.NoError(t, err)

	return el
}

func TestDescribeAndAdd(t *testing.T) {
	t.Parallel()

	ds := dicom.Dataset{Elements: []*dicom.Element{
		mustElement(t, tag.SeriesInstanceUID, "1.2.3"),
		mustElement(t, tag.SeriesDescription, "t1_mprage_sag"),
		mustElement(t, tag.Modality, "MR"),
	}}

	got := describe(ds)
	assert.Equal(t, Series{UID: "1.2.3", Description: "t1_mprage_sag", Modality: "MR", Files: 1}, got)

	series := map[string]*Series{}
	add(series, got)
	add(series, got)
	assert.Equal(t, 2, series["1.2.3"].Files)
}

func TestScanWithoutDICOM(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "proto1", "visitA"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "proto1", "visitA", "notes.txt"), []byte("tiny"), 0o600))
	big := make([]byte, 400)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "proto1", "visitA", "img.nii"), big, 0o600))

	summary, err := Scan(dir)
	require.NoError(t, err)
	assert.True(t, summary.Empty())
	assert.Equal(t, 2, summary.Other)
	assert.Empty(t, summary.Series)
}

func TestScanMissingFolder(t *testing.T) {
	t.Parallel()

	_, err := Scan(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHasPreamble(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fake.dcm")
	content := append(make([]byte, preambleSize), []byte("DICM")...)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	ok, err := hasPreamble(path)
	require.NoError(t, err)
	assert.True(t, ok)

	// the preamble is there but the header is not parseable
	summary, err := Scan(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Files)
	assert.Equal(t, 1, summary.Other)
}
