package selection

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeRules(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "selection.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

// snapshot maps every file below root to its content.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()

	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() {
			return nil
		}
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		out[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	require.NoError(t, err)

	return out
}

func TestSelectKeepsThreeLevelSuffix(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dest")
	writeFile(t, filepath.Join(src, "proto1", "visitA", "img1.dcm"), "img1")

	res, err := Select(t.Context(), Request{
		RulesFile:  writeRules(t, "proto*,*.dcm\n"),
		SourceRoot: src,
		DestRoot:   dst,
		SessionID:  "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, Token, res.Token)
	assert.Equal(t, 1, res.Copied)
	assert.Equal(t, map[string]string{"proto1/visitA/img1.dcm": "img1"}, snapshot(t, dst))
}

func TestSelectIsIdempotent(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dest")
	writeFile(t, filepath.Join(src, "proto1", "visitA", "img1.dcm"), "img1")
	writeFile(t, filepath.Join(src, "proto1", "visitB", "deep", "img2.dcm"), "img2")
	writeFile(t, filepath.Join(src, "proto2", "visitA", "notes.txt"), "ignored")

	req := Request{RulesFile: writeRules(t, "proto*,*.dcm\n"), SourceRoot: src, DestRoot: dst, SessionID: "s1"}

	_, err := Select(t.Context(), req)
	require.NoError(t, err)
	first := snapshot(t, dst)

	_, err = Select(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, first, snapshot(t, dst))
	assert.Equal(t, map[string]string{
		"proto1/visitA/img1.dcm": "img1",
		"visitB/deep/img2.dcm":   "img2",
	}, first)
}

func TestSelectOverwritesAndKeepsTimes(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dest")
	source := filepath.Join(src, "proto1", "visitA", "img1.dcm")
	writeFile(t, source, "fresh")
	mtime := time.Date(2017, 5, 4, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(source, mtime, mtime))
	writeFile(t, filepath.Join(dst, "proto1", "visitA", "img1.dcm"), "stale and longer")

	_, err := Select(t.Context(), Request{RulesFile: writeRules(t, "proto1,img1.dcm\n"), SourceRoot: src, DestRoot: dst})
	require.NoError(t, err)

	target := filepath.Join(dst, "proto1", "visitA", "img1.dcm")
	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(content))
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))
}

func TestSelectDirectoryMatch(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dest")
	writeFile(t, filepath.Join(src, "PR1", "V1", "T1", "a.dcm"), "a")
	writeFile(t, filepath.Join(src, "PR1", "V1", "T1", "b.dcm"), "b")
	writeFile(t, filepath.Join(src, "PR1", "V1", "T1", "sub", "c.dcm"), "c")

	res, err := Select(t.Context(), Request{RulesFile: writeRules(t, "# keep T1 only\n\nPR*, T1\n"), SourceRoot: src, DestRoot: dst})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Copied)
	assert.Equal(t, []string{"PR1/V1/T1"}, res.Matches)
	assert.Equal(t, map[string]string{"PR1/V1/T1/a.dcm": "a", "PR1/V1/T1/b.dcm": "b"}, snapshot(t, dst))
}

func TestSelectWildcardCopiesEachFileOnce(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dest")
	writeFile(t, filepath.Join(src, "proto1", "visitA", "T1", "img1.dcm"), "img1")
	writeFile(t, filepath.Join(src, "proto1", "loose.dcm"), "loose")

	req := Request{RulesFile: writeRules(t, "proto*,*\n"), SourceRoot: src, DestRoot: dst}

	res, err := Select(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Copied)
	assert.NotContains(t, res.Matches, "proto1/visitA/T1/img1.dcm")
	assert.Contains(t, res.Matches, "proto1/visitA/T1")

	want := map[string]string{
		"proto1/visitA/T1/img1.dcm": "img1",
		"proto1/loose.dcm":          "loose",
	}
	assert.Equal(t, want, snapshot(t, dst))

	_, err = Select(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, want, snapshot(t, dst))
}

func TestSelectErrors(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "proto1", "visitA", "img1.dcm"), "img1")

	tcs := map[string]struct {
		req     Request
		wantErr error
	}{
		"missing rules": {
			req:     Request{RulesFile: filepath.Join(src, "absent.csv"), SourceRoot: src, DestRoot: t.TempDir()},
			wantErr: os.ErrNotExist,
		},
		"missing source": {
			req:     Request{RulesFile: writeRules(t, "a,b\n"), SourceRoot: filepath.Join(src, "absent"), DestRoot: t.TempDir()},
			wantErr: os.ErrNotExist,
		},
		"three columns": {
			req:     Request{RulesFile: writeRules(t, "a,b,c\n"), SourceRoot: src, DestRoot: t.TempDir()},
			wantErr: ErrInvalidRule,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := Select(t.Context(), tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestSelectCancelled(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "proto1", "visitA", "img1.dcm"), "img1")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := Apply(ctx, []Rule{{FolderPattern: "proto*", FilePattern: "*.dcm"}}, Request{SourceRoot: src, DestRoot: t.TempDir()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadRules(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		in      string
		want    []Rule
		wantErr bool
	}{
		"trimmed": {
			in:   " proto* ,  *.dcm \nvisit/T1,*.nii\n",
			want: []Rule{{FolderPattern: "proto*", FilePattern: "*.dcm"}, {FolderPattern: "visit/T1", FilePattern: "*.nii"}},
		},
		"comments and blank lines": {
			in:   "# header\n\nproto*,*.dcm\n",
			want: []Rule{{FolderPattern: "proto*", FilePattern: "*.dcm"}},
		},
		"one column":      {in: "proto*\n", wantErr: true},
		"empty pattern":   {in: "proto*,\n", wantErr: true},
		"absolute folder": {in: "/data,*.dcm\n", wantErr: true},
		"empty file":      {in: ""},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := ReadRules(strings.NewReader(tc.in))
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRule)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSuffix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "proto1/visitA/img1.dcm", Suffix("proto1/visitA/img1.dcm"))
	assert.Equal(t, "b/c/d.dcm", Suffix("a/b/c/d.dcm"))
	assert.Equal(t, "visitA/img1.dcm", Suffix("visitA/img1.dcm"))
	assert.Equal(t, "img1.dcm", Suffix("./img1.dcm"))
}

func TestRulePattern(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "proto*/**/*.dcm", Rule{FolderPattern: "proto*", FilePattern: "*.dcm"}.Pattern())
	assert.Equal(t, "a/**/T1", Rule{FolderPattern: "./a/", FilePattern: "T1"}.Pattern())
}
