package astispecifier

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MediaType represents a stream media type
type MediaType int

// Media types
const (
	MediaTypeUnknown MediaType = iota
	MediaTypeVideo
	MediaTypeAudio
	MediaTypeSubtitle
	MediaTypeData
	MediaTypeAttachment
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeSubtitle:
		return "subtitle"
	case MediaTypeData:
		return "data"
	case MediaTypeAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

// Letter returns the specifier letter of the media type
func (t MediaType) Letter() string {
	switch t {
	case MediaTypeVideo:
		return "v"
	case MediaTypeAudio:
		return "a"
	case MediaTypeSubtitle:
		return "s"
	case MediaTypeData:
		return "d"
	case MediaTypeAttachment:
		return "t"
	default:
		return ""
	}
}

// Stream is what a specifier is matched against
type Stream interface {
	AttachedPic() bool
	Dispositions() []string
	ID() int
	Index() int
	MediaType() MediaType
	Metadata() map[string]string
	// Usable returns whether enough codec parameters are known to use the stream
	Usable() bool
}

// Program groups streams of a container
type Program struct {
	ID            int
	Metadata      map[string]string
	StreamIndexes []int
}

// Container gives access to all streams a stream belongs to, which is needed to
// evaluate index based specifiers
type Container interface {
	Programs() []Program
	Stream(idx int) Stream
	StreamCount() int
}

// ErrInvalidSpecifier is returned when a specifier can't be parsed
var ErrInvalidSpecifier = errors.New("astispecifier: invalid stream specifier")

// Specifier is a parsed stream specifier
type Specifier struct {
	dispositions []string
	hasIndex     bool
	hasProgram   bool
	id           *int
	index        int
	mediaType    MediaType
	metadataKey  string
	metadataVal  *string
	noAttached   bool
	programID    int
	raw          string
	usable       bool
	withMetadata bool
}

// Parse parses a stream specifier.
// Accepted forms are "", "v", "a", "s", "d", "t", "V", "<type>:<index>", "<index>",
// "#<id>", "i:<id>", "p:<program id>[:<spec>]", "disp:<name>[+<name>...][:<spec>]",
// "m:<key>[:<value>]" and "u".
// Constraints can be chained with ":" and a trailing index selects the Nth stream
// among the ones satisfying the previous constraints.
func Parse(spec string) (s Specifier, err error) {
	s.raw = spec
	rest := spec
	for len(rest) > 0 {
		// Index
		if rest[0] >= '0' && rest[0] <= '9' {
			var i int
			if i, err = strconv.Atoi(rest); err != nil || i < 0 {
				err = fmt.Errorf("%w %q: invalid index %q", ErrInvalidSpecifier, spec, rest)
				return
			}
			s.hasIndex = true
			s.index = i
			return
		}

		switch {
		case rest[0] == '#' || strings.HasPrefix(rest, "i:"):
			// Stream id is terminal
			v := rest[1:]
			if rest[0] == 'i' {
				v = rest[2:]
			}
			var id int
			if id, err = parseInt(v); err != nil {
				err = fmt.Errorf("%w %q: invalid stream id %q", ErrInvalidSpecifier, spec, v)
				return
			}
			s.id = &id
			return
		case strings.HasPrefix(rest, "m:"):
			// Metadata is terminal and the value may contain ":"
			v := rest[2:]
			if v == "" {
				err = fmt.Errorf("%w %q: empty metadata key", ErrInvalidSpecifier, spec)
				return
			}
			s.withMetadata = true
			if i := strings.Index(v, ":"); i >= 0 {
				s.metadataKey = v[:i]
				val := v[i+1:]
				s.metadataVal = &val
			} else {
				s.metadataKey = v
			}
			return
		case rest == "u":
			s.usable = true
			return
		case strings.HasPrefix(rest, "disp:"):
			if s.dispositions != nil {
				err = fmt.Errorf("%w %q: disposition specified twice", ErrInvalidSpecifier, spec)
				return
			}
			v := rest[5:]
			i := strings.Index(v, ":")
			n := v
			if i >= 0 {
				n = v[:i]
			}
			for _, d := range strings.Split(n, "+") {
				if d == "" {
					err = fmt.Errorf("%w %q: invalid disposition %q", ErrInvalidSpecifier, spec, n)
					return
				}
				s.dispositions = append(s.dispositions, d)
			}
			if i < 0 {
				return
			}
			rest = v[i+1:]
			if rest == "" {
				err = fmt.Errorf("%w %q: trailing ':'", ErrInvalidSpecifier, spec)
				return
			}
			continue
		case strings.HasPrefix(rest, "p:"):
			if s.hasProgram {
				err = fmt.Errorf("%w %q: program specified twice", ErrInvalidSpecifier, spec)
				return
			}
			v := rest[2:]
			i := strings.Index(v, ":")
			n := v
			if i >= 0 {
				n = v[:i]
			}
			if s.programID, err = parseInt(n); err != nil {
				err = fmt.Errorf("%w %q: invalid program id %q", ErrInvalidSpecifier, spec, n)
				return
			}
			s.hasProgram = true
			if i < 0 {
				return
			}
			rest = v[i+1:]
			if rest == "" {
				err = fmt.Errorf("%w %q: trailing ':'", ErrInvalidSpecifier, spec)
				return
			}
			continue
		}

		// Media type
		if s.mediaType != MediaTypeUnknown {
			err = fmt.Errorf("%w %q: media type specified twice", ErrInvalidSpecifier, spec)
			return
		}
		switch rest[0] {
		case 'v':
			s.mediaType = MediaTypeVideo
		case 'V':
			s.mediaType = MediaTypeVideo
			s.noAttached = true
		case 'a':
			s.mediaType = MediaTypeAudio
		case 's':
			s.mediaType = MediaTypeSubtitle
		case 'd':
			s.mediaType = MediaTypeData
		case 't':
			s.mediaType = MediaTypeAttachment
		default:
			err = fmt.Errorf("%w %q", ErrInvalidSpecifier, spec)
			return
		}
		rest = rest[1:]
		if rest == "" {
			return
		}
		if rest[0] != ':' || len(rest) == 1 {
			err = fmt.Errorf("%w %q", ErrInvalidSpecifier, spec)
			return
		}
		rest = rest[1:]
	}
	return
}

// MustParse is like Parse but panics on error
func MustParse(spec string) Specifier {
	s, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the raw specifier
func (s Specifier) String() string { return s.raw }

// IsEmpty returns whether the specifier matches every stream
func (s Specifier) IsEmpty() bool { return s.raw == "" }

// MediaType returns the media type the specifier is restricted to, if any
func (s Specifier) MediaType() MediaType { return s.mediaType }

func (s Specifier) matchesConstraints(c Container, st Stream) bool {
	if s.mediaType != MediaTypeUnknown {
		if st.MediaType() != s.mediaType {
			return false
		}
		if s.noAttached && st.AttachedPic() {
			return false
		}
	}
	if s.id != nil && st.ID() != *s.id {
		return false
	}
	for _, d := range s.dispositions {
		if !hasDisposition(st, d) {
			return false
		}
	}
	if s.withMetadata {
		v, ok := st.Metadata()[s.metadataKey]
		if !ok {
			return false
		}
		if s.metadataVal != nil && v != *s.metadataVal {
			return false
		}
	}
	if s.usable && !st.Usable() {
		return false
	}
	return true
}

func hasDisposition(st Stream, d string) bool {
	for _, v := range st.Dispositions() {
		if v == d {
			return true
		}
	}
	return false
}

func (s Specifier) program(c Container) (p Program, ok bool) {
	for _, v := range c.Programs() {
		if v.ID == s.programID {
			return v, true
		}
	}
	return
}

// Match returns whether the stream matches the specifier
func (s Specifier) Match(c Container, st Stream) bool {
	// Restrict candidates to the program
	var candidates []int
	if s.hasProgram {
		p, ok := s.program(c)
		if !ok {
			return false
		}
		var in bool
		for _, idx := range p.StreamIndexes {
			if idx == st.Index() {
				in = true
			}
		}
		if !in {
			return false
		}
		candidates = p.StreamIndexes
	}

	// Check constraints
	if !s.matchesConstraints(c, st) {
		return false
	}

	// No index
	if !s.hasIndex {
		return true
	}

	// Bare index is absolute
	if !s.hasProgram && s.mediaType == MediaTypeUnknown && s.dispositions == nil && s.id == nil && !s.withMetadata && !s.usable {
		return st.Index() == s.index
	}

	// Index is relative to the streams satisfying the constraints
	if candidates == nil {
		candidates = make([]int, c.StreamCount())
		for i := range candidates {
			candidates[i] = i
		}
	}
	n := 0
	for _, idx := range candidates {
		cst := c.Stream(idx)
		if cst == nil || !s.matchesConstraints(c, cst) {
			continue
		}
		if cst.Index() == st.Index() {
			return n == s.index
		}
		n++
	}
	return false
}

// Match parses the specifier and matches it against the stream
func Match(c Container, st Stream, spec string) (bool, error) {
	s, err := Parse(spec)
	if err != nil {
		return false, err
	}
	return s.Match(c, st), nil
}

func parseInt(s string) (int, error) {
	i, err := strconv.ParseInt(s, 0, 0)
	return int(i), err
}
