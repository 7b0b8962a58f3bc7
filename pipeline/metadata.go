package astipipeline

import (
	"math"
	"strings"

	astioptions "github.com/asticode/go-astitranscoder/options"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// Metadata types
const (
	metadataTypeChapter = 'c'
	metadataTypeGlobal  = 'g'
	metadataTypeProgram = 'p'
	metadataTypeStream  = 's'
)

// Global metadata keys that are not copied from inputs
var droppedGlobalMetadataKeys = []string{
	"company_name",
	"creation_time",
	"product_name",
	"product_version",
}

// metadataTarget is a parsed "g", "s[:spec]", "c[:index]" or "p[:index]" metadata specifier
type metadataTarget struct {
	index      int
	streamSpec string
	typ        byte
}

func parseMetadataTarget(s string) (t metadataTarget, err error) {
	t.typ = metadataTypeGlobal
	if s == "" {
		return
	}
	t.typ = s[0]
	switch t.typ {
	case metadataTypeGlobal:
	case metadataTypeStream:
		if len(s) > 1 && s[1] != ':' {
			err = configurationError("invalid metadata specifier %s", s)
			return
		}
		if len(s) > 1 {
			t.streamSpec = s[2:]
		}
	case metadataTypeChapter, metadataTypeProgram:
		if len(s) > 1 && s[1] == ':' {
			t.index, _, _ = parseLeadingInt(s[2:])
		}
	default:
		err = configurationError("invalid metadata type %c", s[0])
	}
	return
}

// copyMetadata handles a "-map_metadata[:outspec] infile[:inspec]" directive
func (p *Pipeline) copyMetadata(of *OutputFile, outSpec, arg string) (err error) {
	// Input file
	fileIndex, rest, ok := parseLeadingInt(arg)
	if !ok || fileIndex >= len(p.inputFiles) {
		return configurationError("invalid input file index %d while processing metadata maps", fileIndex)
	}
	inSpec := strings.TrimPrefix(rest, ":")

	// Parse targets
	var in, out metadataTarget
	if in, err = parseMetadataTarget(inSpec); err != nil {
		return
	}
	if out, err = parseMetadataTarget(outSpec); err != nil {
		return
	}

	// Disable automatic copies only
	if fileIndex < 0 {
		if out.typ == metadataTypeGlobal || outSpec == "" {
			of.metadataGlobalManual = true
		}
		if out.typ == metadataTypeStream || outSpec == "" {
			of.metadataStreamsManual = true
		}
		if out.typ == metadataTypeChapter || outSpec == "" {
			of.metadataChaptersManual = true
		}
		return
	}
	if in.typ == metadataTypeGlobal || out.typ == metadataTypeGlobal {
		of.metadataGlobalManual = true
	}
	if in.typ == metadataTypeStream || out.typ == metadataTypeStream {
		of.metadataStreamsManual = true
	}
	if in.typ == metadataTypeChapter || out.typ == metadataTypeChapter {
		of.metadataChaptersManual = true
	}
	if in.typ == metadataTypeProgram || out.typ == metadataTypeProgram {
		return configurationError("program metadata maps are not supported")
	}

	// Source
	f := p.inputFiles[fileIndex]
	var src map[string]string
	switch in.typ {
	case metadataTypeGlobal:
		src = f.Container.Metadata()
	case metadataTypeChapter:
		cs := f.Container.Chapters()
		if in.index < 0 || in.index >= len(cs) {
			return configurationError("invalid chapter index %d while processing metadata maps", in.index)
		}
		src = cs[in.index].Metadata
	case metadataTypeStream:
		var s astispecifier.Specifier
		if s, err = astispecifier.Parse(in.streamSpec); err != nil {
			return configurationError("parsing metadata stream specifier failed: %w", err)
		}
		found := false
		for _, ist := range f.streams {
			if s.Match(f, ist) {
				src, found = ist.Info.Metadata, true
				break
			}
		}
		if !found {
			return configurationError("stream specifier %s does not match any streams", in.streamSpec)
		}
	}

	// Destination
	switch out.typ {
	case metadataTypeGlobal:
		copyMetadataMap(of.metadata, src, false)
	case metadataTypeChapter:
		if out.index < 0 || out.index >= len(of.chapters) {
			return configurationError("invalid chapter index %d while processing metadata maps", out.index)
		}
		copyMetadataMap(of.chapters[out.index].Metadata, src, false)
	case metadataTypeStream:
		var s astispecifier.Specifier
		if s, err = astispecifier.Parse(out.streamSpec); err != nil {
			return configurationError("parsing metadata stream specifier failed: %w", err)
		}
		for _, ost := range of.streams {
			if s.Match(of, ost) {
				copyMetadataMap(ost.metadata, src, false)
			}
		}
	}
	return
}

// copyMetadataMap copies src into dst, existing keys being overwritten only when asked to
func copyMetadataMap(dst, src map[string]string, overwrite bool) {
	for k, v := range src {
		if _, ok := dst[k]; ok && !overwrite {
			continue
		}
		dst[k] = v
	}
}

// copyChapters copies the chapters of an input file that overlap the output time range
func copyChapters(f *InputFile, of *OutputFile, withMetadata bool) {
	startTime := of.StartTime
	if startTime == NoPTS {
		startTime = 0
	}
	for _, in := range f.Container.Chapters() {
		// Time range
		tsOff := RescaleQ(startTime-f.TSOffset, TimeBaseQ, in.TimeBase)
		rt := int64(math.MaxInt64)
		if of.RecordingTime != math.MaxInt64 {
			rt = RescaleQ(of.RecordingTime, TimeBaseQ, in.TimeBase)
		}
		if in.End < tsOff {
			continue
		}
		if rt != math.MaxInt64 && in.Start > rt+tsOff {
			break
		}

		// Copy
		out := Chapter{
			End:      in.End - tsOff,
			ID:       in.ID,
			Metadata: make(map[string]string),
			Start:    in.Start - tsOff,
			TimeBase: in.TimeBase,
		}
		if out.Start < 0 {
			out.Start = 0
		}
		if out.End > rt {
			out.End = rt
		}
		if withMetadata {
			copyMetadataMap(out.Metadata, in.Metadata, true)
		}
		of.chapters = append(of.chapters, out)
	}
}

// copyAutomaticMetadata copies chapters as well as global and stream metadata unless the user took
// control over them
func (p *Pipeline) copyAutomaticMetadata(of *OutputFile, g *astioptions.Group) (err error) {
	// Chapters
	chaptersFileIndex := -1
	if v, ok := g.LastInt("map_chapters"); ok {
		if v >= len(p.inputFiles) {
			return configurationError("invalid input file index %d in chapter mapping", v)
		}
		chaptersFileIndex = v
	} else {
		for _, f := range p.inputFiles {
			if len(f.Container.Chapters()) > 0 {
				chaptersFileIndex = f.Index
				break
			}
		}
	}
	if chaptersFileIndex >= 0 {
		copyChapters(p.inputFiles[chaptersFileIndex], of, !of.metadataChaptersManual)
	}

	// Global
	if !of.metadataGlobalManual && len(p.inputFiles) > 0 {
		copyMetadataMap(of.metadata, p.inputFiles[0].Container.Metadata(), false)
		if of.RecordingTime != math.MaxInt64 {
			delete(of.metadata, "duration")
		}
		for _, k := range droppedGlobalMetadataKeys {
			delete(of.metadata, k)
		}
	}

	// Streams
	if !of.metadataStreamsManual {
		for _, ost := range of.streams {
			if ost.Source == nil {
				continue
			}
			copyMetadataMap(ost.metadata, ost.Source.Info.Metadata, false)
			if !ost.StreamCopy {
				delete(ost.metadata, "encoder")
			}
		}
	}
	return
}

// applyManualMetadata applies "-metadata[:spec] key=value" directives, an empty value deleting the key
func (p *Pipeline) applyManualMetadata(of *OutputFile, g *astioptions.Group) (err error) {
	for _, o := range g.Opts("metadata") {
		// Parse
		v, _ := o.Value.Str()
		i := strings.IndexByte(v, '=')
		if i < 0 {
			return configurationError("no '=' character in metadata string %s", v)
		}
		key, val := v[:i], v[i+1:]
		var t metadataTarget
		if t, err = parseMetadataTarget(o.Specifier); err != nil {
			return
		}

		// Destination
		var ms []map[string]string
		switch t.typ {
		case metadataTypeStream:
			var s astispecifier.Specifier
			if s, err = astispecifier.Parse(t.streamSpec); err != nil {
				return configurationError("parsing metadata stream specifier failed: %w", err)
			}
			for _, ost := range of.streams {
				if s.Match(of, ost) {
					ms = append(ms, ost.metadata)
				}
			}
		case metadataTypeGlobal:
			ms = append(ms, of.metadata)
		case metadataTypeChapter:
			if t.index < 0 || t.index >= len(of.chapters) {
				return configurationError("invalid chapter index %d in metadata specifier", t.index)
			}
			ms = append(ms, of.chapters[t.index].Metadata)
		default:
			return configurationError("invalid metadata specifier %s", o.Specifier)
		}

		// Set
		for _, m := range ms {
			if val == "" {
				delete(m, key)
			} else {
				m[key] = val
			}
		}
	}
	return
}
