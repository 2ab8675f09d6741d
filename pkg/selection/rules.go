package selection

import (
	"encoding/csv"
	"io"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidRule = errors.New("invalid selection rule")

// Rule selects the files named FilePattern anywhere below the folders matching FolderPattern.
type Rule struct {
	FolderPattern string
	FilePattern   string
}

// Pattern returns the recursive glob of the rule, relative to the source root.
func (r Rule) Pattern() string {
	return path.Join(r.FolderPattern, "**", r.FilePattern)
}

// ReadRulesFile reads the rules of a CSV file.
func ReadRulesFile(name string) ([]Rule, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open selection rules")
	}
	defer f.Close()

	return ReadRules(f)
}

// ReadRules reads two-column CSV rows. Blank lines and lines starting with # are ignored.
func ReadRules(r io.Reader) ([]Rule, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rules []Rule
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "unable to read selection rules")
		}

		line, _ := reader.FieldPos(0)
		if len(record) != 2 {
			return nil, errors.Wrapf(ErrInvalidRule, "line %d: expected 2 columns, got %d", line, len(record))
		}

		rule := Rule{
			FolderPattern: strings.TrimSpace(record[0]),
			FilePattern:   strings.TrimSpace(record[1]),
		}
		if rule.FolderPattern == "" || rule.FilePattern == "" {
			return nil, errors.Wrapf(ErrInvalidRule, "line %d: empty pattern", line)
		}
		if path.IsAbs(rule.FolderPattern) {
			return nil, errors.Wrapf(ErrInvalidRule, "line %d: folder pattern must be relative", line)
		}

		rules = append(rules, rule)
	}

	return rules, nil
}
