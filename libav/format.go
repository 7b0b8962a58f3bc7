package astilibav

import (
	"github.com/asticode/go-astiav"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
)

// Codecs are listed by preference, the first one having an encoder is used
type formatCodecs struct {
	attachedPic bool
	audio       []string
	data        []string
	subtitle    []string
	video       []string
}

var formatsCodecs = map[string]formatCodecs{
	"3gp":          {audio: []string{"amr_nb"}, video: []string{"h263"}},
	"adts":         {audio: []string{"aac"}},
	"ass":          {subtitle: []string{"ass"}},
	"avi":          {audio: []string{"mp3", "ac3"}, video: []string{"mpeg4"}},
	"dash":         {audio: []string{"aac"}, video: []string{"h264", "mpeg4"}},
	"flac":         {attachedPic: true, audio: []string{"flac"}, video: []string{"png"}},
	"flv":          {audio: []string{"mp3", "adpcm_swf"}, video: []string{"flv1"}},
	"gif":          {video: []string{"gif"}},
	"h264":         {video: []string{"h264"}},
	"hevc":         {video: []string{"hevc"}},
	"hls":          {audio: []string{"aac"}, video: []string{"h264", "mpeg2video"}},
	"image2":       {video: []string{"mjpeg"}},
	"ipod":         {attachedPic: true, audio: []string{"aac"}, subtitle: []string{"mov_text"}, video: []string{"h264", "mpeg4"}},
	"matroska":     {attachedPic: true, audio: []string{"vorbis", "ac3"}, subtitle: []string{"ass"}, video: []string{"h264", "mpeg4"}},
	"mjpeg":        {video: []string{"mjpeg"}},
	"mov":          {attachedPic: true, audio: []string{"aac"}, subtitle: []string{"mov_text"}, video: []string{"h264", "mpeg4"}},
	"mp2":          {audio: []string{"mp2"}},
	"mp3":          {attachedPic: true, audio: []string{"mp3"}, video: []string{"png"}},
	"mp4":          {attachedPic: true, audio: []string{"aac"}, subtitle: []string{"mov_text"}, video: []string{"h264", "mpeg4"}},
	"mpeg":         {audio: []string{"mp2"}, video: []string{"mpeg1video"}},
	"mpegts":       {audio: []string{"mp2"}, subtitle: []string{"dvb_subtitle"}, video: []string{"mpeg2video"}},
	"null":         {audio: []string{"pcm_s16le"}, video: []string{"wrapped_avframe"}},
	"ogg":          {audio: []string{"vorbis", "flac"}, video: []string{"theora"}},
	"opus":         {audio: []string{"opus"}},
	"rawvideo":     {video: []string{"rawvideo"}},
	"srt":          {subtitle: []string{"subrip"}},
	"wav":          {audio: []string{"pcm_s16le"}},
	"webm":         {audio: []string{"opus", "vorbis"}, subtitle: []string{"webvtt"}, video: []string{"vp9", "vp8"}},
	"webvtt":       {subtitle: []string{"webvtt"}},
	"yuv4mpegpipe": {video: []string{"wrapped_avframe"}},
}

// preferredCodec returns the first codec having an encoder, or the last codec if none has
func preferredCodec(names []string) string {
	for _, n := range names {
		if id, ok := codecIDByName(n); ok && astiav.FindEncoder(id) != nil {
			return n
		}
	}
	if len(names) > 0 {
		return names[len(names)-1]
	}
	return ""
}

func outputFormat(f *astiav.OutputFormat) (o astipipeline.OutputFormat) {
	if f == nil {
		return
	}
	o.Flags = formatFlagsFromLibav(f.Flags())
	o.Name = f.Name()
	if c, ok := formatsCodecs[o.Name]; ok {
		o.AudioCodec = preferredCodec(c.audio)
		o.DataCodec = preferredCodec(c.data)
		o.SubtitleCodec = preferredCodec(c.subtitle)
		o.SupportsAttachedPic = c.attachedPic
		o.VideoCodec = preferredCodec(c.video)
	}
	return
}
