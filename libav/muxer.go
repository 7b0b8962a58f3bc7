package astilibav

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/asticode/go-astiav"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

type outputContainer struct {
	bytesWritten int64
	fc           *astiav.FormatContext
	format       astipipeline.OutputFormat
	ioc          *astiav.IOContext
	m            *sync.Mutex // Locks fc
	path         string
	s            *SDK
	ss           []*outputStream
	unusedOpen   map[string]bool
}

type outputStream struct {
	bsfs []*bitstreamFilter
	st   *astiav.Stream
}

// CreateOutput implements the astipipeline.Muxer interface
func (s *SDK) CreateOutput(ctx context.Context, path, format string) (_ astipipeline.OutputContainer, err error) {
	// Alloc format context
	var fc *astiav.FormatContext
	if fc, err = astiav.AllocOutputFormatContext(nil, format, path); err != nil {
		err = fmt.Errorf("astilibav: allocating output format context for %s failed: %w", path, err)
		return
	} else if fc == nil {
		err = fmt.Errorf("astilibav: unable to find a suitable output format for %s", path)
		return
	}

	// Create output
	o := &outputContainer{
		fc:   fc,
		m:    &sync.Mutex{},
		path: path,
		s:    s,
	}
	o.format = outputFormat(fc.OutputFormat())
	return o, nil
}

// BytesWritten implements the astipipeline.OutputContainer interface
func (o *outputContainer) BytesWritten() int64 { return atomic.LoadInt64(&o.bytesWritten) }

// Format implements the astipipeline.OutputContainer interface
func (o *outputContainer) Format() astipipeline.OutputFormat { return o.format }

// Close implements the astipipeline.OutputContainer interface
func (o *outputContainer) Close() (err error) {
	// Lock
	o.m.Lock()
	defer o.m.Unlock()

	// Free bitstream filters
	for _, s := range o.ss {
		for _, f := range s.bsfs {
			f.free()
		}
		s.bsfs = nil
	}

	// Close io context
	if o.ioc != nil {
		if err = o.ioc.Close(); err != nil {
			err = fmt.Errorf("astilibav: closing io context of %s failed: %w", o.path, err)
		}
		o.ioc = nil
	}

	// Free format context
	if o.fc != nil {
		o.fc.Free()
		o.fc = nil
	}
	return
}

// NewStream implements the astipipeline.OutputContainer interface
func (o *outputContainer) NewStream(t astispecifier.MediaType) (index int, err error) {
	o.m.Lock()
	defer o.m.Unlock()
	st := o.fc.NewStream(nil)
	if st == nil {
		err = fmt.Errorf("astilibav: creating %s stream in %s failed", t, o.path)
		return
	}
	o.ss = append(o.ss, &outputStream{st: st})
	index = st.Index()
	return
}

// Open implements the astipipeline.OutputContainer interface
func (o *outputContainer) Open(options map[string]string) (err error) {
	// Lock
	o.m.Lock()
	defer o.m.Unlock()

	// Create dictionary
	var d *dictionary
	if d, err = newDictionary(options); err != nil {
		err = fmt.Errorf("astilibav: creating dictionary failed: %w", err)
		return
	}
	defer d.free()

	// Open io context
	if o.ioc, err = astiav.OpenIOContext(o.path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, d.d); err != nil {
		err = fmt.Errorf("astilibav: opening io context of %s failed: %w", o.path, err)
		return
	}
	o.fc.SetPb(o.ioc)

	// Store unused options
	o.unusedOpen = make(map[string]bool)
	for _, k := range d.unused() {
		o.unusedOpen[k] = true
	}
	return
}

// SetChapters implements the astipipeline.OutputContainer interface
func (o *outputContainer) SetChapters(cs []astipipeline.Chapter) {
	if len(cs) > 0 {
		o.s.warn(nil, "%s: %d chapter(s) dropped since chapters can't be written", o.path, len(cs))
	}
}

// SetMetadata implements the astipipeline.OutputContainer interface
func (o *outputContainer) SetMetadata(m map[string]string) {
	o.m.Lock()
	defer o.m.Unlock()
	if err := setMetadata(o.fc.Metadata, o.fc.SetMetadata, m); err != nil {
		o.s.warn(nil, "%s: setting metadata failed: %s", o.path, err)
	}
}

func setMetadata(get func() *astiav.Dictionary, set func(*astiav.Dictionary), m map[string]string) error {
	if len(m) == 0 {
		return nil
	}
	d := get()
	if d == nil {
		d = astiav.NewDictionary()
		set(d)
	}
	return mapToDictionary(d, m)
}

// SetStreamParameters implements the astipipeline.OutputContainer interface
func (o *outputContainer) SetStreamParameters(index int, p astipipeline.OutputStreamParameters) (err error) {
	// Lock
	o.m.Lock()
	defer o.m.Unlock()

	// Get stream
	if index < 0 || index >= len(o.ss) {
		err = fmt.Errorf("astilibav: invalid stream index %d", index)
		return
	}
	s := o.ss[index]

	// Codec parameters
	if err = codecParametersToLibav(p.CodecParameters, s.st.CodecParameters()); err != nil {
		err = fmt.Errorf("astilibav: setting codec parameters failed: %w", err)
		return
	}

	// Stream properties
	s.st.SetTimeBase(rationalToLibav(p.TimeBase))
	if p.AvgFrameRate.Num > 0 && p.AvgFrameRate.Den > 0 {
		s.st.SetAvgFrameRate(rationalToLibav(p.AvgFrameRate))
	}
	if p.SampleAspectRatio.Num > 0 && p.SampleAspectRatio.Den > 0 {
		s.st.SetSampleAspectRatio(rationalToLibav(p.SampleAspectRatio))
	}
	s.st.SetDispositionFlags(dispositionToLibav(p.Disposition))
	if err = setMetadata(s.st.Metadata, s.st.SetMetadata, p.Metadata); err != nil {
		err = fmt.Errorf("astilibav: setting stream metadata failed: %w", err)
		return
	}

	// Bitstream filters
	if p.BitstreamFilters != "" {
		if s.bsfs, err = newBitstreamFilters(p.BitstreamFilters, s.st.CodecParameters(), s.st.TimeBase()); err != nil {
			err = fmt.Errorf("astilibav: creating bitstream filters failed: %w", err)
			return
		}

		// Last filter decides stream parameters
		last := s.bsfs[len(s.bsfs)-1]
		if err = last.bsfc.OutputCodecParameters().Copy(s.st.CodecParameters()); err != nil {
			err = fmt.Errorf("astilibav: copying bitstream filter codec parameters failed: %w", err)
			return
		}
		s.st.SetTimeBase(last.bsfc.OutputTimeBase())
	}
	return
}

func codecParametersToLibav(p astipipeline.CodecParameters, dst *astiav.CodecParameters) (err error) {
	// Copy backend parameters
	if src, ok := p.Opaque.(*astiav.CodecParameters); ok {
		if err = src.Copy(dst); err != nil {
			err = fmt.Errorf("astilibav: copying codec parameters failed: %w", err)
			return
		}

		// Only an explicit tag is kept, the muxer picks one otherwise
		if uint32(src.CodecTag()) == p.CodecTag {
			dst.SetCodecTag(0)
		} else {
			dst.SetCodecTag(astiav.CodecTag(p.CodecTag))
		}
		return
	}

	// Find codec id
	id, ok := codecIDByName(p.CodecName)
	if !ok {
		err = fmt.Errorf("astilibav: unknown codec %s", p.CodecName)
		return
	}

	// Fill parameters
	dst.SetBitRate(p.BitRate)
	dst.SetCodecID(id)
	dst.SetCodecTag(astiav.CodecTag(p.CodecTag))
	dst.SetMediaType(mediaTypeToLibav(p.MediaType))
	switch p.MediaType {
	case astispecifier.MediaTypeVideo:
		dst.SetHeight(p.Height)
		dst.SetWidth(p.Width)
		if f, ok := pixelFormatFromName(p.PixelFormat); ok {
			dst.SetPixelFormat(f)
		}
	case astispecifier.MediaTypeAudio:
		if l, ok := channelLayoutFromName(p.ChannelLayout); ok {
			dst.SetChannelLayout(l)
		} else if l, ok = defaultChannelLayout(p.Channels); ok {
			dst.SetChannelLayout(l)
		}
		dst.SetFrameSize(p.FrameSize)
		dst.SetSampleRate(p.SampleRate)
		if f, ok := sampleFormatFromName(p.SampleFormat); ok {
			dst.SetSampleFormat(f)
		}
	case astispecifier.MediaTypeSubtitle:
		dst.SetHeight(p.Height)
		dst.SetWidth(p.Width)
	}
	return
}

// StreamTimeBase implements the astipipeline.OutputContainer interface
func (o *outputContainer) StreamTimeBase(index int) astipipeline.Rational {
	o.m.Lock()
	defer o.m.Unlock()
	if index < 0 || index >= len(o.ss) {
		return astipipeline.Rational{}
	}
	return rationalFromLibav(o.ss[index].st.TimeBase())
}

// WriteHeader implements the astipipeline.OutputContainer interface
func (o *outputContainer) WriteHeader(options map[string]string) (err error) {
	// Lock
	o.m.Lock()
	defer o.m.Unlock()

	// Create dictionary
	var d *dictionary
	if d, err = newDictionary(options); err != nil {
		err = fmt.Errorf("astilibav: creating dictionary failed: %w", err)
		return
	}
	defer d.free()

	// Write header
	if err = o.fc.WriteHeader(d.d); err != nil {
		err = fmt.Errorf("astilibav: writing header of %s failed: %w", o.path, err)
		return
	}

	// Options consumed neither when opening the file nor when writing the header
	var unused []string
	for _, k := range d.unused() {
		if o.unusedOpen == nil || o.unusedOpen[k] {
			unused = append(unused, k)
		}
	}
	if len(unused) > 0 {
		sort.Strings(unused)
		o.s.warn(nil, "%s: options not found: %s", o.path, strings.Join(unused, ", "))
	}
	return
}

// WritePacket implements the astipipeline.OutputContainer interface
func (o *outputContainer) WritePacket(p *astipipeline.Packet) (err error) {
	// Get packet
	var pkt *astiav.Packet
	if pkt, err = libavPacket(p); err != nil {
		return
	}

	// Lock
	o.m.Lock()
	defer o.m.Unlock()

	// Get stream
	if p.StreamIndex < 0 || p.StreamIndex >= len(o.ss) {
		err = fmt.Errorf("astilibav: invalid stream index %d", p.StreamIndex)
		return
	}
	s := o.ss[p.StreamIndex]

	// No bitstream filters
	if len(s.bsfs) == 0 {
		return o.writePacket(pkt)
	}

	// Filter
	return filterPacket(s.bsfs, o.s.pp, pkt, func(pkt *astiav.Packet) error {
		pkt.SetStreamIndex(p.StreamIndex)
		return o.writePacket(pkt)
	})
}

func (o *outputContainer) writePacket(pkt *astiav.Packet) error {
	size := int64(pkt.Size())
	if err := o.fc.WriteInterleavedFrame(pkt); err != nil {
		return fmt.Errorf("astilibav: writing interleaved frame failed: %w", err)
	}
	atomic.AddInt64(&o.bytesWritten, size)
	return nil
}

// WriteTrailer implements the astipipeline.OutputContainer interface
func (o *outputContainer) WriteTrailer() (err error) {
	// Lock
	o.m.Lock()
	defer o.m.Unlock()

	// Flush bitstream filters
	for idx, s := range o.ss {
		if len(s.bsfs) == 0 {
			continue
		}
		if err = filterPacket(s.bsfs, o.s.pp, nil, func(pkt *astiav.Packet) error {
			pkt.SetStreamIndex(idx)
			return o.writePacket(pkt)
		}); err != nil {
			err = fmt.Errorf("astilibav: flushing bitstream filters failed: %w", err)
			return
		}
	}

	// Write trailer
	if err = o.fc.WriteTrailer(); err != nil {
		err = fmt.Errorf("astilibav: writing trailer of %s failed: %w", o.path, err)
		return
	}
	return
}
