// Package dicominfo summarises the DICOM series found below a session folder.
package dicominfo

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Series groups the files sharing a SeriesInstanceUID.
type Series struct {
	UID         string `json:"uid" yaml:"uid"`
	Description string `json:"description" yaml:"description"`
	Modality    string `json:"modality" yaml:"modality"`
	Protocol    string `json:"protocol" yaml:"protocol"`
	Files       int    `json:"files" yaml:"files"`
}

// Summary is the result of Scan.
type Summary struct {
	Folder string   `json:"folder" yaml:"folder"`
	Files  int      `json:"files" yaml:"files"`
	Other  int      `json:"other" yaml:"other"`
	Series []Series `json:"series" yaml:"series"`
}

// Empty reports whether no DICOM file was found.
func (s Summary) Empty() bool {
	return s.Files == 0
}

var magic = []byte("DICM")

const preambleSize = 128

// Scan walks folder and parses the header of every DICOM file, pixel data skipped.
// Files without the DICM preamble are only counted.
func Scan(folder string) (Summary, error) {
	summary := Summary{Folder: folder}
	series := make(map[string]*Series)

	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		ok, err := hasPreamble(path)
		if err != nil {
			return err
		}
		if !ok {
			summary.Other++
			return nil
		}

		dataset, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
		if err != nil {
			summary.Other++
			return nil //nolint:nilerr // unreadable headers are counted, not fatal
		}

		summary.Files++
		add(series, describe(dataset))

		return nil
	})
	if err != nil {
		return summary, errors.Wrapf(err, "unable to scan %s", folder)
	}

	for _, s := range series {
		summary.Series = append(summary.Series, *s)
	}
	sort.Slice(summary.Series, func(i, j int) bool {
		return summary.Series[i].UID < summary.Series[j].UID
	})

	return summary, nil
}

func hasPreamble(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, errors.Wrap(err, "unable to open file")
	}
	defer f.Close()

	header := make([]byte, preambleSize+len(magic))
	_, err = io.ReadFull(f, header)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, errors.Wrapf(err, "unable to read %s", path)
	}

	return bytes.Equal(header[preambleSize:], magic), nil
}

func describe(dataset dicom.Dataset) Series {
	return Series{
		UID:         firstString(dataset, tag.SeriesInstanceUID),
		Description: firstString(dataset, tag.SeriesDescription),
		Modality:    firstString(dataset, tag.Modality),
		Protocol:    firstString(dataset, tag.ProtocolName),
		Files:       1,
	}
}

func add(series map[string]*Series, s Series) {
	existing, ok := series[s.UID]
	if !ok {
		series[s.UID] = &s
		return
	}
	existing.Files += s.Files
}

func firstString(dataset dicom.Dataset, t tag.Tag) string {
	element, err := dataset.FindElementByTag(t)
	if err != nil {
		return ""
	}
	if element.Value.ValueType() != dicom.Strings {
		return ""
	}

	values := dicom.MustGetStrings(element.Value)
	if len(values) == 0 {
		return ""
	}

	return values[0]
}
