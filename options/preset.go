package astioptions

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrPresetNotFound is returned when no preset file matches
var ErrPresetNotFound = errors.New("astioptions: preset not found")

// Setting is a key=value line of a preset file
type Setting struct {
	Key   string
	Value string
}

// IsCodecName returns whether the setting selects a codec rather than setting a codec option
func (s Setting) IsCodecName() bool {
	d, _, ok := FindDef(s.Key)
	return ok && d.Name == "c"
}

// ParsePreset parses a preset. Blank lines and lines starting with "#" are ignored.
func ParsePreset(r io.Reader) (ss []Setting, err error) {
	s := bufio.NewScanner(r)
	n := 0
	for s.Scan() {
		n++
		l := strings.TrimSpace(s.Text())

		// Skip
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}

		// Split
		i := strings.Index(l, "=")
		if i < 0 {
			err = fmt.Errorf("astioptions: invalid line %d %q found in the preset file", n, l)
			return
		}
		ss = append(ss, Setting{Key: l[:i], Value: l[i+1:]})
	}
	if err = s.Err(); err != nil {
		err = fmt.Errorf("astioptions: scanning preset failed: %w", err)
		return
	}
	return
}

// ParsePresetFile parses a preset file
func ParsePresetFile(path string) (ss []Setting, err error) {
	// Open
	var f *os.File
	if f, err = os.Open(path); err != nil {
		err = fmt.Errorf("astioptions: opening %s failed: %w", path, err)
		return
	}
	defer f.Close()

	// Parse
	if ss, err = ParsePreset(f); err != nil {
		err = fmt.Errorf("astioptions: parsing %s failed: %w", path, err)
		return
	}
	return
}

// FindPresetFile looks for "<codec>-<name>.avpreset" then "<name>.avpreset" in each directory.
// A name that is a path to an existing file is returned as is.
func FindPresetFile(dirs []string, name, codec string) (string, error) {
	if fi, err := os.Stat(name); err == nil && !fi.IsDir() {
		return name, nil
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		var candidates []string
		if codec != "" {
			candidates = append(candidates, filepath.Join(dir, codec+"-"+name+".avpreset"))
		}
		candidates = append(candidates, filepath.Join(dir, name+".avpreset"))
		for _, p := range candidates {
			if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPresetNotFound, name)
}

// DefaultPresetDirs returns the directories presets are looked for in
func DefaultPresetDirs() (dirs []string) {
	if v := os.Getenv("ASTITRANSCODER_DATADIR"); v != "" {
		dirs = append(dirs, v)
	}
	if h, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(h, ".astitranscoder"))
	}
	return
}
