package astioptions

// Flag describes where and how an option applies
type Flag uint

const (
	FlagInput Flag = 1 << iota
	FlagOutput
	FlagGlobal
	// The option accepts a ":<stream specifier>" suffix
	FlagPerStream
	// The option accepts a ":<metadata specifier>" suffix
	FlagMetadataSpec
	// Int64 value is a duration in microseconds
	FlagTime
	// Int64 value may carry SI suffixes
	FlagNumber
)

func (f Flag) Has(v Flag) bool { return f&v > 0 }

// Def defines an option
type Def struct {
	// When set, the option is a shorthand for another option with a forced specifier
	Alias     string
	AliasSpec string
	Flags     Flag
	Help      string
	Kind      Kind
	Name      string
}

const (
	fileOpt   = FlagInput | FlagOutput
	streamOpt = FlagInput | FlagOutput | FlagPerStream
)

// Defs are the options the orchestrator understands. Any other option is handed to
// the codec or format layers.
var Defs = []Def{
	// Global
	{Name: "filter_complex", Kind: KindString, Flags: FlagGlobal, Help: "create a complex filtergraph"},
	{Name: "lavfi", Alias: "filter_complex", Flags: FlagGlobal},
	{Name: "filter_complex_script", Kind: KindString, Flags: FlagGlobal, Help: "read complex filtergraph description from a file"},
	{Name: "vsync", Kind: KindString, Flags: FlagGlobal, Help: "video sync method"},
	{Name: "y", Kind: KindBool, Flags: FlagGlobal, Help: "overwrite output files"},
	{Name: "n", Kind: KindBool, Flags: FlagGlobal, Help: "never overwrite output files"},

	// Input and output
	{Name: "f", Kind: KindString, Flags: fileOpt, Help: "force format"},
	{Name: "c", Kind: KindString, Flags: streamOpt, Help: "codec name"},
	{Name: "codec", Alias: "c", Flags: streamOpt},
	{Name: "vcodec", Alias: "c", AliasSpec: "v", Flags: fileOpt},
	{Name: "acodec", Alias: "c", AliasSpec: "a", Flags: fileOpt},
	{Name: "scodec", Alias: "c", AliasSpec: "s", Flags: fileOpt},
	{Name: "dcodec", Alias: "c", AliasSpec: "d", Flags: fileOpt},
	{Name: "t", Kind: KindInt64, Flags: fileOpt | FlagTime, Help: "record or transcode \"duration\" seconds of audio/video"},
	{Name: "to", Kind: KindInt64, Flags: fileOpt | FlagTime, Help: "record or transcode stop time"},
	{Name: "ss", Kind: KindInt64, Flags: fileOpt | FlagTime, Help: "set the start time offset"},
	{Name: "r", Kind: KindString, Flags: streamOpt, Help: "set frame rate"},
	{Name: "ar", Kind: KindInt, Flags: streamOpt, Help: "set audio sampling rate"},
	{Name: "ac", Kind: KindInt, Flags: streamOpt, Help: "set number of audio channels"},
	{Name: "s", Kind: KindString, Flags: streamOpt, Help: "set frame size"},
	{Name: "pix_fmt", Kind: KindString, Flags: streamOpt, Help: "set pixel format"},
	{Name: "tag", Kind: KindString, Flags: streamOpt, Help: "force codec tag/fourcc"},
	{Name: "vn", Kind: KindBool, Flags: fileOpt, Help: "disable video"},
	{Name: "an", Kind: KindBool, Flags: fileOpt, Help: "disable audio"},
	{Name: "sn", Kind: KindBool, Flags: fileOpt, Help: "disable subtitle"},
	{Name: "dn", Kind: KindBool, Flags: fileOpt, Help: "disable data"},

	// Input
	{Name: "sseof", Kind: KindInt64, Flags: FlagInput | FlagTime, Help: "set the start time offset relative to EOF"},
	{Name: "itsoffset", Kind: KindInt64, Flags: FlagInput | FlagTime, Help: "set the input ts offset"},
	{Name: "itsscale", Kind: KindDouble, Flags: FlagInput | FlagPerStream, Help: "set the input ts scale"},
	{Name: "stream_loop", Kind: KindInt, Flags: FlagInput, Help: "set number of times input stream shall be looped"},
	{Name: "re", Kind: KindBool, Flags: FlagInput, Help: "read input at native frame rate"},
	{Name: "discard", Kind: KindString, Flags: FlagInput | FlagPerStream, Help: "discard"},
	{Name: "hwaccel", Kind: KindString, Flags: FlagInput | FlagPerStream, Help: "use HW accelerated decoding"},
	{Name: "hwaccel_device", Kind: KindString, Flags: FlagInput | FlagPerStream, Help: "select a device for HW acceleration"},
	{Name: "hwaccel_output_format", Kind: KindString, Flags: FlagInput | FlagPerStream, Help: "select output format used with HW accelerated decoding"},
	{Name: "guess_layout_max", Kind: KindInt, Flags: FlagInput | FlagPerStream, Help: "set the maximum number of channels to try to guess the channel layout"},
	{Name: "thread_queue_size", Kind: KindInt, Flags: FlagInput, Help: "set the maximum number of queued packets from the demuxer"},

	// Output
	{Name: "map", Kind: KindString, Flags: FlagOutput, Help: "set input stream mapping"},
	{Name: "map_metadata", Kind: KindString, Flags: FlagOutput | FlagMetadataSpec, Help: "set metadata information of outfile from infile"},
	{Name: "map_chapters", Kind: KindInt, Flags: FlagOutput, Help: "set chapters mapping"},
	{Name: "metadata", Kind: KindString, Flags: FlagOutput | FlagMetadataSpec, Help: "add metadata"},
	{Name: "frames", Kind: KindInt64, Flags: FlagOutput | FlagPerStream, Help: "set the number of frames to output"},
	{Name: "vframes", Alias: "frames", AliasSpec: "v", Flags: FlagOutput},
	{Name: "aframes", Alias: "frames", AliasSpec: "a", Flags: FlagOutput},
	{Name: "dframes", Alias: "frames", AliasSpec: "d", Flags: FlagOutput},
	{Name: "q", Kind: KindDouble, Flags: FlagOutput | FlagPerStream, Help: "use fixed quality scale (VBR)"},
	{Name: "qscale", Alias: "q", Flags: FlagOutput | FlagPerStream},
	{Name: "filter", Kind: KindString, Flags: FlagOutput | FlagPerStream, Help: "set stream filtergraph"},
	{Name: "vf", Alias: "filter", AliasSpec: "v", Flags: FlagOutput},
	{Name: "af", Alias: "filter", AliasSpec: "a", Flags: FlagOutput},
	{Name: "filter_script", Kind: KindString, Flags: FlagOutput | FlagPerStream, Help: "read stream filtergraph description from a file"},
	{Name: "pass", Kind: KindInt, Flags: FlagOutput | FlagPerStream, Help: "select the pass number (1 to 3)"},
	{Name: "passlogfile", Kind: KindString, Flags: FlagOutput | FlagPerStream, Help: "select two pass log file name prefix"},
	{Name: "bsf", Kind: KindString, Flags: FlagOutput | FlagPerStream, Help: "a comma-separated list of bitstream filters"},
	{Name: "vbsf", Alias: "bsf", AliasSpec: "v", Flags: FlagOutput},
	{Name: "absf", Alias: "bsf", AliasSpec: "a", Flags: FlagOutput},
	{Name: "disposition", Kind: KindString, Flags: FlagOutput | FlagPerStream, Help: "disposition"},
	{Name: "time_base", Kind: KindString, Flags: FlagOutput | FlagPerStream, Help: "set the desired time base hint for output stream"},
	{Name: "max_muxing_queue_size", Kind: KindInt, Flags: FlagOutput | FlagPerStream, Help: "maximum number of packets that can be buffered while waiting for all streams to initialize"},
	{Name: "pre", Kind: KindString, Flags: FlagOutput | FlagPerStream, Help: "preset name"},
	{Name: "vpre", Alias: "pre", AliasSpec: "v", Flags: FlagOutput},
	{Name: "apre", Alias: "pre", AliasSpec: "a", Flags: FlagOutput},
	{Name: "spre", Alias: "pre", AliasSpec: "s", Flags: FlagOutput},
	{Name: "shortest", Kind: KindBool, Flags: FlagOutput, Help: "finish encoding within shortest input"},
	{Name: "fs", Kind: KindInt64, Flags: FlagOutput | FlagNumber, Help: "set the limit file size in bytes"},
	{Name: "sample_fmt", Kind: KindString, Flags: FlagOutput | FlagPerStream, Help: "set sample format"},
	{Name: "force_key_frames", Kind: KindString, Flags: FlagOutput | FlagPerStream, Help: "force key frames at specified timestamps"},
}

var defsByName = func() (m map[string]Def) {
	m = make(map[string]Def)
	for _, d := range Defs {
		m[d.Name] = d
	}
	return
}()

// FindDef returns the definition of an option, with aliases resolved to their target
func FindDef(name string) (d Def, aliasSpec string, ok bool) {
	if d, ok = defsByName[name]; !ok {
		return
	}
	if d.Alias != "" {
		aliasSpec = d.AliasSpec
		flags := d.Flags
		d = defsByName[d.Alias]
		d.Flags = flags | d.Flags&(FlagTime|FlagNumber|FlagPerStream|FlagMetadataSpec)
	}
	return
}
