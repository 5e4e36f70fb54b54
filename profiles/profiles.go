// Package profiles holds named device geometries. A built-in table covers
// the common configurations; additional profiles can be read from CSV files
// with the same columns.
package profiles

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/valbaum/slfs"
)

// Profile is one named device geometry.
type Profile struct {
	Slug         string `csv:"slug"`
	BlockSize    int    `csv:"block_size"`
	TotalBlocks  int    `csv:"total_blocks"`
	InodeCount   int    `csv:"inodes"`
	MaxOpenFiles int    `csv:"max_open_files"`
}

// Geometry converts the profile into mount parameters.
func (p Profile) Geometry() slfs.Geometry {
	return slfs.Geometry{
		BlockSize:    p.BlockSize,
		TotalBlocks:  p.TotalBlocks,
		InodeCount:   p.InodeCount,
		MaxOpenFiles: p.MaxOpenFiles,
	}
}

//go:embed profiles.csv
var builtinProfilesCSV string

var builtinProfiles = map[string]Profile{}

// Get returns a built-in profile by slug.
func Get(slug string) (Profile, error) {
	profile, ok := builtinProfiles[slug]
	if !ok {
		return Profile{}, slfs.ErrNotFound.WithMessage(
			fmt.Sprintf("no built-in profile named %q", slug),
		)
	}
	return profile, nil
}

// Slugs lists the built-in profile names.
func Slugs() []string {
	slugs := make([]string, 0, len(builtinProfiles))
	for slug := range builtinProfiles {
		slugs = append(slugs, slug)
	}
	return slugs
}

// Load reads profiles from an open CSV stream.
func Load(reader io.Reader) ([]Profile, error) {
	var rows []Profile
	err := gocsv.UnmarshalToCallback(reader, func(row Profile) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil && err != io.EOF {
		return nil, slfs.ErrInvalidArgument.Wrap(err)
	}
	return rows, nil
}

// LoadFile reads the profile file at `path` and returns its first row,
// which is what the shell's property-file initialization uses.
func LoadFile(path string) (Profile, error) {
	handle, err := os.Open(path)
	if err != nil {
		return Profile{}, slfs.ErrNotFound.Wrap(err)
	}
	defer handle.Close()

	rows, err := Load(handle)
	if err != nil {
		return Profile{}, err
	}
	if len(rows) == 0 {
		return Profile{}, slfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("profile file %q has no rows", path),
		)
	}
	return rows[0], nil
}

func init() {
	reader := strings.NewReader(builtinProfilesCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Profile) error {
		if _, exists := builtinProfiles[row.Slug]; exists {
			return fmt.Errorf("duplicate profile definition %q", row.Slug)
		}
		builtinProfiles[row.Slug] = row
		return nil
	})
	if err != nil && err != io.EOF {
		panic(err)
	}
}
