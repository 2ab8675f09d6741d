// Package selection copies the images matching CSV rules from a session tree into a
// destination tree.
//
// Every match keeps its last three path segments (protocol, visit, file type) below the
// destination root. A file whose parent folder also matched is only copied with that folder. Copies overwrite existing files, so running a selection twice on the
// same source leaves the destination unchanged.
package selection

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/askiada/go-preprocess/internal/ctxlog"
	"github.com/askiada/go-preprocess/internal/fsutil"
)

// Token is returned on completion.
const Token = "ok"

// SuffixDepth is the number of trailing path segments kept for every match.
const SuffixDepth = 3

type Request struct {
	RulesFile  string
	SourceRoot string
	DestRoot   string
	SessionID  string
}

type Result struct {
	Token   string
	Copied  int
	Matches []string
}

// Select applies every rule of req.RulesFile to req.SourceRoot. Any I/O error aborts.
func Select(ctx context.Context, req Request) (Result, error) {
	rules, err := ReadRulesFile(req.RulesFile)
	if err != nil {
		return Result{}, err
	}

	return Apply(ctx, rules, req)
}

// Apply runs rules against req.SourceRoot.
func Apply(ctx context.Context, rules []Rule, req Request) (Result, error) {
	logger := ctxlog.FromContext(ctx).With("session_id", req.SessionID)

	info, err := os.Stat(req.SourceRoot)
	if err != nil {
		return Result{}, errors.Wrap(err, "unable to stat source root")
	}
	if !info.IsDir() {
		return Result{}, errors.Errorf("source root %s is not a folder", req.SourceRoot)
	}

	fsys := os.DirFS(req.SourceRoot)
	matches, err := collect(fsys, rules)
	if err != nil {
		return Result{}, err
	}

	res := Result{Token: Token}
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrap(err, "selection interrupted")
		}
		if !m.dir && matches.hasDir(path.Dir(m.name)) {
			continue
		}

		n, err := copyMatch(m, req)
		if err != nil {
			return res, err
		}
		res.Copied += n
		res.Matches = append(res.Matches, m.name)
	}

	logger.Info("images selected", "rules", len(rules), "matches", len(res.Matches), "copied", res.Copied)

	return res, nil
}

type match struct {
	name string
	dir  bool
}

type matchList []match

func (l matchList) hasDir(name string) bool {
	for _, m := range l {
		if m.dir && m.name == name {
			return true
		}
	}

	return false
}

// collect returns the distinct matches of every rule, in rule order. Entries that are
// neither folders nor regular files are dropped.
func collect(fsys fs.FS, rules []Rule) (matchList, error) {
	seen := make(map[string]struct{})
	var out matchList

	for _, rule := range rules {
		names, err := doublestar.Glob(fsys, rule.Pattern())
		if err != nil {
			return nil, errors.Wrapf(err, "unable to match %s", rule.Pattern())
		}

		for _, name := range names {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}

			info, err := fs.Stat(fsys, name)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to stat %s", name)
			}
			if !info.IsDir() && !info.Mode().IsRegular() {
				continue
			}
			out = append(out, match{name: name, dir: info.IsDir()})
		}
	}

	return out, nil
}

// copyMatch copies the files directly inside a matched folder, or a matched file, below
// the suffix of the match. Files inside a matched folder are copied with the folder.
func copyMatch(m match, req Request) (int, error) {
	src := filepath.Join(req.SourceRoot, filepath.FromSlash(m.name))
	dst := filepath.Join(req.DestRoot, filepath.FromSlash(Suffix(m.name)))

	if m.dir {
		n, err := fsutil.CopyDirFiles(src, dst)
		if err != nil {
			return n, errors.Wrapf(err, "unable to copy folder %s", m.name)
		}
		return n, nil
	}

	err := fsutil.CopyFile(src, dst)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to copy %s", m.name)
	}

	return 1, nil
}

// Suffix returns the last SuffixDepth segments of a slash separated path, or the whole
// path when it is shorter.
func Suffix(match string) string {
	segments := strings.Split(path.Clean(match), "/")
	if len(segments) > SuffixDepth {
		segments = segments[len(segments)-SuffixDepth:]
	}

	return path.Join(segments...)
}
