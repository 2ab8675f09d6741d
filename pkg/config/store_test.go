package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultAndExplicit(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		setup func(s *Store)
		key   string
		want  string
	}{
		"default only": {
			setup: func(s *Store) { s.SetDefault("demo", "NIFTI_SPM_FUNCTION", "DCM2NII_LREN") },
			key:   "NIFTI_SPM_FUNCTION",
			want:  "DCM2NII_LREN",
		},
		"explicit only": {
			setup: func(s *Store) { s.Set("demo", "NIFTI_SPM_FUNCTION", "custom") },
			key:   "NIFTI_SPM_FUNCTION",
			want:  "custom",
		},
		"default then explicit": {
			setup: func(s *Store) {
				s.SetDefault("demo", "NIFTI_SPM_FUNCTION", "DCM2NII_LREN")
				s.Set("demo", "NIFTI_SPM_FUNCTION", "custom")
			},
			key:  "NIFTI_SPM_FUNCTION",
			want: "custom",
		},
		"explicit then default": {
			setup: func(s *Store) {
				s.Set("demo", "NIFTI_SPM_FUNCTION", "custom")
				s.SetDefault("demo", "NIFTI_SPM_FUNCTION", "DCM2NII_LREN")
			},
			key:  "NIFTI_SPM_FUNCTION",
			want: "custom",
		},
		"explicit empty value wins": {
			setup: func(s *Store) {
				s.SetDefault("demo", "DATASET_CONFIG", "x")
				s.Set("demo", "DATASET_CONFIG", "")
			},
			key:  "DATASET_CONFIG",
			want: "",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := New()
			tc.setup(s)
			got, err := s.Get("demo", tc.key)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	s := New()
	s.SetDefault("other", "PIPELINES_PATH", "/opt")

	_, err := s.Get("demo", "PIPELINES_PATH")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingConfiguration)

	var missing *MissingConfigurationError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "demo", missing.Section)
	assert.Equal(t, "PIPELINES_PATH", missing.Key)
	assert.False(t, s.Has("demo", "PIPELINES_PATH"))
	assert.Equal(t, "fallback", s.GetOr("demo", "PIPELINES_PATH", "fallback"))
}

func TestKeysAreCaseInsensitive(t *testing.T) {
	t.Parallel()

	s := New()
	s.Set("demo", "nifti_local_folder", "/data/nifti")

	got, err := s.Get("demo", "NIFTI_LOCAL_FOLDER")
	require.NoError(t, err)
	assert.Equal(t, "/data/nifti", got)

	_, err = s.Get("Demo", "NIFTI_LOCAL_FOLDER")
	assert.ErrorIs(t, err, ErrMissingConfiguration)
}

func TestLoadINI(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "preprocess.ini")
	content := `
[demo]
PIPELINES_PATH = /opt/pipelines
COPY_TO_LOCAL_TIMEOUT = 2h
MAX_ACTIVE_RUNS = 4
FEATURES_S3_USE_SSL = true

[data-factory]
CATALOG_DATABASE_URL = postgres://localhost/catalog
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := Load(path)
	require.NoError(t, err)

	v, err := s.Get("demo", "PIPELINES_PATH")
	require.NoError(t, err)
	assert.Equal(t, "/opt/pipelines", v)

	d, err := s.Duration("demo", "COPY_TO_LOCAL_TIMEOUT")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, d)

	i, err := s.Int("demo", "MAX_ACTIVE_RUNS")
	require.NoError(t, err)
	assert.Equal(t, 4, i)

	b, err := s.Bool("demo", "FEATURES_S3_USE_SSL")
	require.NoError(t, err)
	assert.True(t, b)

	v, err = s.Get("data-factory", "CATALOG_DATABASE_URL")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/catalog", v)
}

func TestTypedParseErrors(t *testing.T) {
	t.Parallel()

	s, err := LoadBytes([]byte("[demo]\nTIMEOUT = soon\nCOUNT = many\nFLAG = maybe\n"))
	require.NoError(t, err)

	_, err = s.Duration("demo", "TIMEOUT")
	assert.ErrorContains(t, err, "TIMEOUT")
	_, err = s.Int("demo", "COUNT")
	assert.ErrorContains(t, err, "COUNT")
	_, err = s.Bool("demo", "FLAG")
	assert.ErrorContains(t, err, "FLAG")
	_, err = s.Duration("demo", "ABSENT")
	assert.ErrorIs(t, err, ErrMissingConfiguration)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.ini"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	s := New()
	s.Set("data-factory", "FEATURES_S3_BUCKET", "old")
	s.Set("Demo", "PIPELINES_PATH", "/old")

	n := s.applyEnv("PREPROCESS", []string{
		"PREPROCESS_DATA_FACTORY__FEATURES_S3_BUCKET=features",
		"PREPROCESS_DEMO__PIPELINES_PATH=/opt/pipelines",
		"PREPROCESS_NEW__MIN_FREE_SPACE=2 GB",
		"PREPROCESS_BROKEN=1",
		"HOME=/root",
	})
	assert.Equal(t, 3, n)
	assert.Equal(t, "features", s.GetOr("data-factory", "FEATURES_S3_BUCKET", ""))
	assert.Equal(t, "/opt/pipelines", s.GetOr("Demo", "PIPELINES_PATH", ""))
	assert.Equal(t, "2 GB", s.GetOr("new", "MIN_FREE_SPACE", ""))
}
