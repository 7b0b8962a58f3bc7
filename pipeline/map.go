package astipipeline

import (
	"strings"

	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// StreamMap maps an input stream or a filter graph output to an output file
type StreamMap struct {
	Disabled        bool
	FileIndex       int
	LinkLabel       string
	StreamIndex     int
	SyncFileIndex   int
	SyncStreamIndex int
}

// ParseMap parses a -map argument and updates the maps of an output file accordingly.
// Accepted forms are "[-]<file>[:<spec>][,<sync file>[:<sync spec>]][?]" and "[<label>]".
// A negative map disables the previous maps it matches instead of adding new ones.
func (p *Pipeline) ParseMap(ms []StreamMap, arg string) (_ []StreamMap, err error) {
	// Flags
	m := arg
	negative := strings.HasPrefix(m, "-")
	if negative {
		m = m[1:]
	}
	allowUnused := strings.HasSuffix(m, "?")
	if allowUnused {
		m = m[:len(m)-1]
	}

	// Filter graph output
	if strings.HasPrefix(m, "[") {
		i := strings.IndexByte(m, ']')
		if i < 0 || i == 1 {
			err = configurationError("invalid output link label: %s", m)
			return
		}
		ms = append(ms, StreamMap{
			FileIndex:       -1,
			LinkLabel:       m[1:i],
			StreamIndex:     -1,
			SyncFileIndex:   -1,
			SyncStreamIndex: -1,
		})
		return ms, nil
	}

	// Sync stream
	syncFileIndex, syncStreamIndex := -1, -1
	if i := strings.IndexByte(m, ','); i >= 0 {
		sync := m[i+1:]
		m = m[:i]
		if syncFileIndex, syncStreamIndex, err = p.parseSyncStream(arg, sync); err != nil {
			return
		}
	}

	// Input file
	fileIndex, rest, ok := parseLeadingInt(m)
	if !ok || fileIndex < 0 || fileIndex >= len(p.inputFiles) {
		err = configurationError("invalid input file index: %d", fileIndex)
		return
	}
	f := p.inputFiles[fileIndex]
	spec := strings.TrimPrefix(rest, ":")
	var s astispecifier.Specifier
	if s, err = astispecifier.Parse(spec); err != nil {
		err = configurationError("parsing stream specifier of map %s failed: %w", arg, err)
		return
	}

	// Disable previous maps
	if negative {
		for i := range ms {
			if ms[i].LinkLabel != "" || ms[i].FileIndex != fileIndex {
				continue
			}
			if s.Match(f, f.streams[ms[i].StreamIndex]) {
				ms[i].Disabled = true
			}
		}
		return ms, nil
	}

	// Add maps
	var added, disabled bool
	for _, ist := range f.streams {
		if !s.Match(f, ist) {
			continue
		}
		if ist.userDiscarded() {
			disabled = true
			continue
		}
		sm := StreamMap{
			FileIndex:       fileIndex,
			StreamIndex:     ist.Index(),
			SyncFileIndex:   syncFileIndex,
			SyncStreamIndex: syncStreamIndex,
		}
		if syncFileIndex < 0 {
			sm.SyncFileIndex, sm.SyncStreamIndex = fileIndex, ist.Index()
		}
		ms = append(ms, sm)
		added = true
	}

	// Nothing matched
	if !added {
		switch {
		case allowUnused:
			p.info(nil, "stream map '%s' matches no streams; ignoring", arg)
		case disabled:
			err = configurationError("stream map '%s' matches disabled streams. To ignore this, add a trailing '?' to the map", arg)
			return
		default:
			err = configurationError("stream map '%s' matches no streams. To ignore this, add a trailing '?' to the map", arg)
			return
		}
	}
	return ms, nil
}

func (p *Pipeline) parseSyncStream(arg, sync string) (fileIndex, streamIndex int, err error) {
	// File
	var rest string
	var ok bool
	if fileIndex, rest, ok = parseLeadingInt(sync); !ok || fileIndex < 0 || fileIndex >= len(p.inputFiles) {
		err = configurationError("invalid sync file index: %d", fileIndex)
		return
	}
	f := p.inputFiles[fileIndex]

	// Stream
	var s astispecifier.Specifier
	if s, err = astispecifier.Parse(strings.TrimPrefix(rest, ":")); err != nil {
		err = configurationError("parsing sync stream specifier of map %s failed: %w", arg, err)
		return
	}
	streamIndex = -1
	for _, ist := range f.streams {
		if s.Match(f, ist) {
			streamIndex = ist.Index()
			break
		}
	}
	if streamIndex < 0 {
		err = configurationError("sync stream specification in map %s does not match any streams", arg)
		return
	}
	if f.streams[streamIndex].userDiscarded() {
		err = configurationError("sync stream specification in map %s matches a disabled input stream", arg)
		return
	}
	return
}

// parseLeadingInt parses the decimal integer s starts with
func parseLeadingInt(s string) (v int, rest string, ok bool) {
	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		v = v*10 + int(s[i]-'0')
		i++
	}
	if i == start {
		return 0, s, false
	}
	if s[0] == '-' {
		v = -v
	}
	return v, s[i:], true
}
