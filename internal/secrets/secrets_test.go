package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/mcmigrate/internal/errors"
)

func TestExpand(t *testing.T) {
	t.Setenv("MCM_TEST_KEY", "abc-us6")
	t.Setenv("MCM_TEST_EMPTY", "")

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "literal", in: "plain-key", want: "plain-key"},
		{name: "reference", in: "${MCM_TEST_KEY}", want: "abc-us6"},
		{name: "embedded", in: "pre-${MCM_TEST_KEY}-post", want: "pre-abc-us6-post"},
		{name: "fallback used", in: "${MCM_TEST_UNSET:-fallback}", want: "fallback"},
		{name: "empty fallback", in: "${MCM_TEST_EMPTY:-}", want: ""},
		{name: "missing", in: "${MCM_TEST_UNSET}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				assert.Contains(t, err.Error(), "MCM_TEST_UNSET")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(good, []byte("secret-us6\n"), 0o600))
	got, err := ReadFile(good)
	require.NoError(t, err)
	assert.Equal(t, "secret-us6", got)
	assert.False(t, Permissive(good))

	open := filepath.Join(dir, "open")
	require.NoError(t, os.WriteFile(open, []byte("x"), 0o644))
	assert.True(t, Permissive(open))

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = ReadFile(empty)
	require.Error(t, err)

	big := filepath.Join(dir, "big")
	require.NoError(t, os.WriteFile(big, []byte(strings.Repeat("a", maxFileSize+1)), 0o600))
	_, err = ReadFile(big)
	require.Error(t, err)

	_, err = ReadFile(dir)
	require.Error(t, err, "directories are rejected")

	_, err = ReadFile(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestResolve(t *testing.T) {
	file := filepath.Join(t.TempDir(), "pw")
	require.NoError(t, os.WriteFile(file, []byte("from-file"), 0o600))
	t.Setenv("MCM_TEST_PW", "from-env")

	got, err := Resolve(file, "${MCM_TEST_PW}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got, "file wins over value")

	got, err = Resolve("", "${MCM_TEST_PW}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
