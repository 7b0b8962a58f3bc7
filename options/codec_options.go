package astioptions

import (
	"fmt"

	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// CodecOptionInfo describes a generic codec option
type CodecOptionInfo struct {
	Audio    bool
	Decoding bool
	Encoding bool
	Subtitle bool
	Video    bool
}

func (i CodecOptionInfo) appliesTo(encoding bool, t astispecifier.MediaType) bool {
	if encoding && !i.Encoding || !encoding && !i.Decoding {
		return false
	}
	switch t {
	case astispecifier.MediaTypeVideo:
		return i.Video
	case astispecifier.MediaTypeAudio:
		return i.Audio
	case astispecifier.MediaTypeSubtitle:
		return i.Subtitle
	}
	return true
}

// CodecOptionFinder looks up generic codec options
type CodecOptionFinder interface {
	CodecOption(name string) (CodecOptionInfo, bool)
	IsFormatOption(name string) bool
}

// FilterCodecOptions returns the codec options that apply to a stream. Options whose
// specifier doesn't match the stream are skipped. Options that are neither generic codec
// options nor private options of the codec are skipped too, unless removing the media type
// letter prefix ("ab" for "b" on audio streams) turns them into a generic option.
// hasPrivateOption is nil when no codec has been found, in which case every option is kept.
func FilterCodecOptions(opts []CodecOption, f CodecOptionFinder, encoding bool, hasPrivateOption func(name string) bool, c astispecifier.Container, st astispecifier.Stream) (m map[string]string, err error) {
	m = make(map[string]string)
	prefix := st.MediaType().Letter()
	if prefix == "d" || prefix == "t" {
		prefix = ""
	}
	for _, o := range opts {
		// Check specifier
		if o.Specifier != "" {
			var ok bool
			if ok, err = astispecifier.Match(c, st, o.Specifier); err != nil {
				err = fmt.Errorf("astioptions: matching codec option %s:%s failed: %w", o.Key, o.Specifier, err)
				return
			} else if !ok {
				continue
			}
		}

		// Generic or private option
		if i, ok := f.CodecOption(o.Key); (ok && i.appliesTo(encoding, st.MediaType())) || hasPrivateOption == nil || hasPrivateOption(o.Key) {
			m[o.Key] = o.Value
			continue
		}

		// Prefixed option
		if prefix != "" && len(o.Key) > 1 && o.Key[:1] == prefix {
			if i, ok := f.CodecOption(o.Key[1:]); ok && i.appliesTo(encoding, st.MediaType()) {
				m[o.Key[1:]] = o.Value
			}
		}
	}
	return
}

// CheckUnusedCodecOptions reports codec options that haven't been used by any stream of a file.
// An option that exists but not in the file's direction is an error, otherwise a warning is returned.
func CheckUnusedCodecOptions(opts []CodecOption, used map[string]bool, f CodecOptionFinder, g *Group) (warnings []string, err error) {
	// Direction
	encoding := g.Kind == GroupKindOutput
	dir, verb := "input", "decoding"
	if encoding {
		dir, verb = "output", "encoding"
	}

	// Loop through options
	done := make(map[string]bool)
	for _, o := range opts {
		// Already processed or used
		if done[o.Key] || used[o.Key] {
			continue
		}
		done[o.Key] = true

		// Not a codec option or also a format option
		i, ok := f.CodecOption(o.Key)
		if !ok || f.IsFormatOption(o.Key) {
			continue
		}

		// Wrong direction
		if (encoding && !i.Encoding) || (!encoding && !i.Decoding) {
			err = fmt.Errorf("astioptions: codec option %s (%s) specified for %s file #%d (%s) is not a %s option", o.Key, o.Value, dir, g.Index, g.Path, verb)
			return
		}

		// Unused
		warnings = append(warnings, fmt.Sprintf("astioptions: codec option %s (%s) specified for %s file #%d (%s) has not been used for any stream. The most likely reason is either wrong type (e.g. a video option with no video streams) or that it is a private option of some %s which was not actually used for any stream", o.Key, o.Value, dir, g.Index, g.Path, map[bool]string{true: "encoder", false: "decoder"}[encoding]))
	}
	return
}
