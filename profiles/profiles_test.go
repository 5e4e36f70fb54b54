package profiles_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valbaum/slfs"
	"github.com/valbaum/slfs/profiles"
)

func TestBuiltinDefaultProfile(t *testing.T) {
	profile, err := profiles.Get("default")
	require.NoError(t, err)

	assert.Equal(t, 64, profile.BlockSize)
	assert.Equal(t, 64, profile.TotalBlocks)
	assert.Equal(t, 24, profile.InodeCount)
	assert.Equal(t, 5, profile.MaxOpenFiles)

	geo := profile.Geometry()
	assert.NoError(t, geo.Validate(), "built-in profiles must be mountable")
}

func TestBuiltinProfilesAreAllValid(t *testing.T) {
	slugs := profiles.Slugs()
	require.NotEmpty(t, slugs)

	for _, slug := range slugs {
		profile, err := profiles.Get(slug)
		require.NoErrorf(t, err, "profile %q", slug)
		assert.NoErrorf(t, profile.Geometry().Validate(), "profile %q is unusable", slug)
	}
}

func TestGetUnknownProfile(t *testing.T) {
	_, err := profiles.Get("no-such-thing")
	assert.ErrorIs(t, err, slfs.ErrNotFound)
}

func TestLoadFromReader(t *testing.T) {
	csv := "slug,block_size,total_blocks,inodes,max_open_files\n" +
		"mine,128,256,48,8\n" +
		"alt,64,64,24,5\n"

	rows, err := profiles.Load(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "mine", rows[0].Slug)
	assert.Equal(t, 128, rows[0].BlockSize)
	assert.Equal(t, "alt", rows[1].Slug)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geometry.csv")
	content := "slug,block_size,total_blocks,inodes,max_open_files\n" +
		"custom,64,128,32,6\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	profile, err := profiles.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", profile.Slug)
	assert.Equal(t, 128, profile.TotalBlocks)
	assert.Equal(t, 6, profile.MaxOpenFiles)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := profiles.LoadFile(filepath.Join(t.TempDir(), "absent.csv"))
	assert.ErrorIs(t, err, slfs.ErrNotFound)
}

func TestLoadFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(
		path,
		[]byte("slug,block_size,total_blocks,inodes,max_open_files\n"),
		0o644,
	))

	_, err := profiles.LoadFile(path)
	assert.ErrorIs(t, err, slfs.ErrInvalidArgument)
}
