package astilibav

import (
	"strings"

	astioptions "github.com/asticode/go-astitranscoder/options"
)

var (
	optionAudioDecoding = astioptions.CodecOptionInfo{Audio: true, Decoding: true}
	optionAudioEncoding = astioptions.CodecOptionInfo{Audio: true, Encoding: true}
	optionAudioVideo    = astioptions.CodecOptionInfo{Audio: true, Decoding: true, Encoding: true, Video: true}
	optionAll           = astioptions.CodecOptionInfo{Audio: true, Decoding: true, Encoding: true, Subtitle: true, Video: true}
	optionAVDecoding    = astioptions.CodecOptionInfo{Audio: true, Decoding: true, Video: true}
	optionAVEncoding    = astioptions.CodecOptionInfo{Audio: true, Encoding: true, Video: true}
	optionAudio         = astioptions.CodecOptionInfo{Audio: true, Decoding: true, Encoding: true}
	optionSubDecoding   = astioptions.CodecOptionInfo{Decoding: true, Subtitle: true}
	optionVideo         = astioptions.CodecOptionInfo{Decoding: true, Encoding: true, Video: true}
	optionVideoDecoding = astioptions.CodecOptionInfo{Decoding: true, Video: true}
	optionVideoEncoding = astioptions.CodecOptionInfo{Encoding: true, Video: true}
)

// genericCodecOptions are the options shared by all codecs
var genericCodecOptions = map[string]astioptions.CodecOptionInfo{
	"ac":                         optionAudio,
	"apply_cropping":             optionVideoDecoding,
	"ar":                         optionAudio,
	"b":                          optionAVEncoding,
	"b_qfactor":                  optionVideoEncoding,
	"bf":                         optionVideoEncoding,
	"bt":                         optionAVEncoding,
	"bufsize":                    optionAVEncoding,
	"ch_layout":                  optionAudio,
	"channel_layout":             optionAudio,
	"chroma_sample_location":     optionVideo,
	"codec_whitelist":            optionAll,
	"color_primaries":            optionVideo,
	"color_range":                optionVideo,
	"color_trc":                  optionVideo,
	"colorspace":                 optionVideo,
	"compression_level":          optionAVEncoding,
	"cutoff":                     optionAudioEncoding,
	"debug":                      optionAll,
	"discard_damaged_percentage": optionVideoDecoding,
	"dump_separator":             optionAll,
	"ec":                         optionVideoDecoding,
	"err_detect":                 optionAVDecoding,
	"export_side_data":           optionAll,
	"extra_hw_frames":            optionVideoDecoding,
	"field_order":                optionVideo,
	"flags":                      optionAll,
	"flags2":                     optionAll,
	"frame_size":                 optionAudioEncoding,
	"g":                          optionVideoEncoding,
	"global_quality":             optionAVEncoding,
	"hwaccel_flags":              optionVideoDecoding,
	"i_qfactor":                  optionVideoEncoding,
	"i_qoffset":                  optionVideoEncoding,
	"keyint_min":                 optionVideoEncoding,
	"level":                      optionAVEncoding,
	"lowres":                     optionAVDecoding,
	"max_pixels":                 optionAll,
	"maxrate":                    optionAVEncoding,
	"mbd":                        optionVideoEncoding,
	"me_range":                   optionVideoEncoding,
	"minrate":                    optionAVEncoding,
	"profile":                    optionAVEncoding,
	"qblur":                      optionVideoEncoding,
	"qcomp":                      optionVideoEncoding,
	"qdiff":                      optionVideoEncoding,
	"qmax":                       optionVideoEncoding,
	"qmin":                       optionVideoEncoding,
	"rc_init_occupancy":          optionVideoEncoding,
	"refs":                       optionVideoEncoding,
	"request_sample_fmt":         optionAudioDecoding,
	"sc_threshold":               optionVideoEncoding,
	"skip_alpha":                 optionVideoDecoding,
	"skip_frame":                 optionVideoDecoding,
	"skip_idct":                  optionVideoDecoding,
	"skip_loop_filter":           optionVideoDecoding,
	"slices":                     optionVideoEncoding,
	"strict":                     optionAudioVideo,
	"sub_charenc":                optionSubDecoding,
	"sub_charenc_mode":           optionSubDecoding,
	"thread_type":                optionAudioVideo,
	"threads":                    optionAudioVideo,
	"trellis":                    optionAVEncoding,
}

// privateCodecOptions are the private options of the most common codecs, indexed by codec name
var privateCodecOptions = map[string][]string{
	"aac":               {"aac_coder", "aac_is", "aac_ltp", "aac_ms", "aac_pce", "aac_pns", "aac_pred", "aac_tns"},
	"dvdsub":            {"even_rows_fix", "forced_subs_only", "ifo_palette", "palette"},
	"h264":              {"enable_er", "is_avc", "nal_length_size", "x264_build"},
	"h264_nvenc":        {"b_ref_mode", "cq", "gpu", "multipass", "preset", "rc", "rc-lookahead", "spatial-aq", "temporal-aq", "tune", "zerolatency"},
	"hevc_nvenc":        {"b_ref_mode", "cq", "gpu", "multipass", "preset", "rc", "rc-lookahead", "spatial-aq", "temporal-aq", "tune", "zerolatency"},
	"libaom-av1":        {"aq-mode", "cpu-used", "crf", "lag-in-frames", "row-mt", "tiles", "usage"},
	"libdav1d":          {"alllayers", "filmgrain", "framethreads", "oppoint", "tilethreads"},
	"libmp3lame":        {"abr", "joint_stereo", "reservoir"},
	"libopus":           {"application", "apply_phase_inv", "fec", "frame_duration", "mapping_family", "packet_loss", "vbr"},
	"libsvtav1":         {"crf", "preset", "qp", "svtav1-params"},
	"libvorbis":         {"iblock"},
	"libvpx":            {"arnr-maxframes", "arnr-strength", "auto-alt-ref", "cpu-used", "crf", "deadline", "error-resilient", "lag-in-frames", "quality", "speed", "static-thresh"},
	"libvpx-vp9":        {"aq-mode", "arnr-maxframes", "arnr-strength", "auto-alt-ref", "corpus-complexity", "cpu-used", "crf", "deadline", "enable-tpl", "error-resilient", "frame-parallel", "lag-in-frames", "lossless", "quality", "row-mt", "speed", "tile-columns", "tile-rows"},
	"libx264":           {"8x8dct", "a53cc", "aq-mode", "aq-strength", "aud", "b-bias", "b-pyramid", "bluray-compat", "crf", "crf_max", "deblock", "direct-pred", "fast-pskip", "fastfirstpass", "forced-idr", "intra-refresh", "mbtree", "mixed-refs", "nal-hrd", "partitions", "preset", "psy", "psy-rd", "qp", "rc-lookahead", "slice-max-size", "ssim", "stats", "tune", "weightb", "weightp", "x264-params", "x264opts"},
	"libx265":           {"a53cc", "crf", "forced-idr", "preset", "qp", "tune", "udu_sei", "x265-params"},
	"mjpeg":             {"huffman", "pred"},
	"mpeg4":             {"alternate_scan", "data_partitioning", "mpeg_quant", "mpv_flags", "quantizer_noise_shaping"},
	"png":               {"dpi", "dpm", "pred"},
	"prores_ks":         {"alpha_bits", "bits_per_mb", "mbs_per_slice", "quant_mat", "vendor"},
	"mpeg2video":        {"a53cc", "intra_vlc", "non_linear_quant", "seq_disp_ext", "video_format"},
	"h264_qsv":          {"async_depth", "look_ahead", "preset"},
	"h264_vaapi":        {"aud", "quality", "sei"},
	"h264_videotoolbox": {"allow_sw", "realtime", "require_sw"},
}

var privateCodecOptionNames = func() (m map[string]struct{}) {
	m = make(map[string]struct{})
	for _, os := range privateCodecOptions {
		for _, o := range ns {
			m[o] = struct{}{}
		}
	}
	return
}()

// formatOptions are the generic format options and the private options of the most common formats
var formatOptions = map[string]bool{
	"analyzeduration":                 true,
	"audio_preload":                   true,
	"avioflags":                       true,
	"avoid_negative_ts":               true,
	"brand":                           true,
	"chunk_duration":                  true,
	"chunk_size":                      true,
	"cluster_size_limit":              true,
	"cluster_time_limit":              true,
	"correct_ts_overflow":             true,
	"cryptokey":                       true,
	"duration_probesize":              true,
	"f_err_detect":                    true,
	"f_strict":                        true,
	"fdebug":                          true,
	"fflags":                          true,
	"flush_packets":                   true,
	"format_whitelist":                true,
	"formatprobesize":                 true,
	"fpsprobesize":                    true,
	"frag_duration":                   true,
	"frag_size":                       true,
	"headers":                         true,
	"hls_base_url":                    true,
	"hls_flags":                       true,
	"hls_list_size":                   true,
	"hls_playlist_type":               true,
	"hls_segment_filename":            true,
	"hls_segment_type":                true,
	"hls_time":                        true,
	"ignore_length":                   true,
	"indexmem":                        true,
	"listen":                          true,
	"live":                            true,
	"loop":                            true,
	"max_delay":                       true,
	"max_interleave_delta":            true,
	"max_probe_packets":               true,
	"max_streams":                     true,
	"max_ts_probe":                    true,
	"metadata_header_padding":         true,
	"min_frag_duration":               true,
	"movflags":                        true,
	"mpegts_flags":                    true,
	"mpegts_service_id":               true,
	"muxrate":                         true,
	"output_ts_offset":                true,
	"packetsize":                      true,
	"pattern_type":                    true,
	"pcr_period":                      true,
	"probesize":                       true,
	"protocol_blacklist":              true,
	"protocol_whitelist":              true,
	"reconnect":                       true,
	"reconnect_delay_max":             true,
	"reconnect_streamed":              true,
	"reserve_index_space":             true,
	"reset_timestamps":                true,
	"rtbufsize":                       true,
	"rtsp_flags":                      true,
	"rtsp_transport":                  true,
	"rw_timeout":                      true,
	"safe":                            true,
	"seek2any":                        true,
	"seg_duration":                    true,
	"segment_format":                  true,
	"segment_list":                    true,
	"segment_time":                    true,
	"skip_estimate_duration_from_pts": true,
	"skip_initial_bytes":              true,
	"start_number":                    true,
	"start_time_realtime":             true,
	"timeout":                         true,
	"use_editlist":                    true,
	"use_wallclock_as_timestamps":     true,
	"user_agent":                      true,
	"window_size":                     true,
	"write_tmcd":                      true,
}

var (
	grabberDemuxerOptions  = []string{"framerate", "video_size"}
	rawAudioDemuxerOptions = []string{"ch_layout", "channels", "sample_rate"}
	rawVideoDemuxerOptions = []string{"framerate", "pixel_format", "video_size"}
	demuxerOptionsByFormat = map[string][]string{
		"alsa":         {"channels", "sample_rate"},
		"avfoundation": rawVideoDemuxerOptions,
		"dshow":        {"channels", "framerate", "pixel_format", "sample_rate", "video_size"},
		"gdigrab":      grabberDemuxerOptions,
		"h264":         {"framerate"},
		"hevc":         {"framerate"},
		"image2":       rawVideoDemuxerOptions,
		"image2pipe":   rawVideoDemuxerOptions,
		"pulse":        {"channels", "sample_rate"},
		"rawvideo":     rawVideoDemuxerOptions,
		"v4l2":         rawVideoDemuxerOptions,
		"video4linux2": rawVideoDemuxerOptions,
		"x11grab":      grabberDemuxerOptions,
	}
	rawAudioFormatPrefixes = []string{"alaw", "f32", "f64", "mulaw", "s16", "s24", "s32", "s8", "u16", "u24", "u32", "u8"}
)

// demuxerHasOption checks whether a demuxer exposes a private option
func demuxerHasOption(format, option string) bool {
	ns, ok := demuxerOptionsByFormat[format]
	if !ok {
		for _, p := range rawAudioFormatPrefixes {
			if strings.HasPrefix(format, p) {
				ns = rawAudioDemuxerOptions
				break
			}
		}
	}
	for _, o := range ns {
		if o == option {
			return true
		}
	}
	return false
}
