package handler

import (
	"context"
	"fmt"
	"sort"

	"github.com/snapetech/mediaworkerr/internal/errcode"
	"github.com/snapetech/mediaworkerr/internal/ipc"
	"github.com/snapetech/mediaworkerr/internal/util"
	"github.com/snapetech/mediaworkerr/internal/ytdlp"
)

// rawFormat mirrors one entry of the extractor's formats array.
type rawFormat struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	Height         int     `json:"height"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	TBR            float64 `json:"tbr"`
	ABR            float64 `json:"abr"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
}

func (f rawFormat) hasVideo() bool { return f.VCodec != "" && f.VCodec != "none" }
func (f rawFormat) hasAudio() bool { return f.ACodec != "" && f.ACodec != "none" }

func (f rawFormat) size() int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	return f.FilesizeApprox
}

// VideoOption is one selectable video quality.
type VideoOption struct {
	FormatID   string `json:"format_id"`
	Resolution string `json:"resolution"`
	Ext        string `json:"ext"`
	Filesize   string `json:"filesize"`
	NeedsMerge bool   `json:"needs_merge"`
}

// AudioOption is one selectable audio rendition.
type AudioOption struct {
	FormatID string `json:"format_id"`
	Type     string `json:"type"` // "native" or "mp3"
	Bitrate  int    `json:"bitrate_kbps"`
	Quality  string `json:"quality"` // extractor audio-quality scale
	Ext      string `json:"ext"`
	Filesize string `json:"filesize,omitempty"`
}

// standard ladder; a format joins a tier when its height is within 30px
var videoTiers = []int{2160, 1440, 1080, 720, 480, 360}

const tierTolerance = 30

// Formats serves get_formats: one probe, then the raw format list is
// shaped by the requested mode, video tiers or audio options.
func (d *Deps) Formats(ctx context.Context, req *ipc.Request, w *ipc.Writer) error {
	if err := util.ValidateYouTubeURL(req.URL); err != nil {
		return errcode.Wrap(errcode.InvalidURL, "unsupported url", err)
	}
	mode := req.ParamString("mode", "video")
	if mode != "audio" {
		mode = "video"
	}
	d.Users.Touch(ctx, req.UserChatID)

	var doc struct {
		Title   string      `json:"title"`
		Formats []rawFormat `json:"formats"`
	}
	pol := ytdlp.ProbePolicy{Common: d.common(), Target: req.URL}
	if err := d.probeJSON(ctx, pol, &doc); err != nil {
		return err
	}
	if len(doc.Formats) == 0 {
		return errcode.New(errcode.NoSuitableFormat, "extractor returned no formats")
	}

	w.Send(req.TaskID, ipc.EventFormatList, formatsPayload(doc.Title, mode, doc.Formats))
	return nil
}

// formatsPayload shapes the response for one mode.
func formatsPayload(title, mode string, formats []rawFormat) map[string]any {
	payload := map[string]any{"title": title, "mode": mode}
	if mode == "audio" {
		payload["formats"] = audioOptions(formats)
	} else {
		payload["formats"] = groupVideoTiers(formats)
	}
	return payload
}

// groupVideoTiers keeps the best format (highest total bitrate) per
// resolution tier. Tiers without their own audio get "+bestaudio"
// appended so the download merges.
func groupVideoTiers(formats []rawFormat) []VideoOption {
	best := map[int]rawFormat{}
	for _, f := range formats {
		if !f.hasVideo() || f.Height <= 0 {
			continue
		}
		tier, ok := nearestTier(f.Height)
		if !ok {
			continue
		}
		if cur, exists := best[tier]; !exists || f.TBR > cur.TBR {
			best[tier] = f
		}
	}

	tiers := make([]int, 0, len(best))
	for t := range best {
		tiers = append(tiers, t)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(tiers)))

	out := make([]VideoOption, 0, len(tiers))
	for _, t := range tiers {
		f := best[t]
		opt := VideoOption{
			FormatID:   f.FormatID,
			Resolution: fmt.Sprintf("%dp", t),
			Ext:        f.Ext,
			Filesize:   util.FormatSize(f.size()),
		}
		if !f.hasAudio() {
			opt.FormatID += "+bestaudio"
			opt.NeedsMerge = true
		}
		out = append(out, opt)
	}
	return out
}

func nearestTier(height int) (int, bool) {
	bestTier, bestDist := 0, tierTolerance+1
	for _, t := range videoTiers {
		dist := height - t
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			bestTier, bestDist = t, dist
		}
	}
	return bestTier, bestDist <= tierTolerance
}

// audioOptions lists the native best audio stream plus the three MP3
// transcode presets.
func audioOptions(formats []rawFormat) []AudioOption {
	var native *rawFormat
	for i, f := range formats {
		if !f.hasAudio() || f.hasVideo() {
			continue
		}
		if native == nil || f.ABR > native.ABR {
			native = &formats[i]
		}
	}

	var out []AudioOption
	if native != nil {
		out = append(out, AudioOption{
			FormatID: native.FormatID,
			Type:     "native",
			Bitrate:  int(native.ABR),
			Ext:      native.Ext,
			Filesize: util.FormatSize(native.size()),
		})
	}
	for _, preset := range []struct {
		bitrate int
		quality string
	}{{320, "0"}, {192, "2"}, {128, "5"}} {
		out = append(out, AudioOption{
			FormatID: "bestaudio",
			Type:     "mp3",
			Bitrate:  preset.bitrate,
			Quality:  preset.quality,
			Ext:      "mp3",
		})
	}
	return out
}
