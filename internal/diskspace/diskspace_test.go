package diskspace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		in      string
		want    uint64
		wantErr bool
	}{
		"decimal":    {in: "1 GB", want: 1_000_000_000},
		"binary":     {in: "500MiB", want: 500 * 1024 * 1024},
		"plain":      {in: "42", want: 42},
		"not a size": {in: "plenty", wantErr: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseSize(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var probed []string
	free := func(path string) (uint64, error) {
		probed = append(probed, path)
		return 2_000, nil
	}

	require.NoError(t, Check(free, 1_000, dir, "", filepath.Join(dir, "not", "yet", "created")))
	assert.Equal(t, []string{dir, dir}, probed)

	err := Check(free, 3_000, dir)
	assert.ErrorIs(t, err, ErrInsufficientSpace)
	assert.Contains(t, err.Error(), "2.0 kB available, 3.0 kB required")
}

func TestFree(t *testing.T) {
	t.Parallel()

	avail, err := Free(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, avail)

	_, err = Free(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
