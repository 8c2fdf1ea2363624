package handler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/snapetech/mediaworkerr/internal/errcode"
	"github.com/snapetech/mediaworkerr/internal/ipc"
	"github.com/snapetech/mediaworkerr/internal/pool"
	"github.com/snapetech/mediaworkerr/internal/progress"
	"github.com/snapetech/mediaworkerr/internal/util"
	"github.com/snapetech/mediaworkerr/internal/ytdlp"
)

// YoutubeDL serves the youtube_dl action: download one video (or its
// audio), stream progress, ingest the result into the storage pool and
// answer done with the final file.
func (d *Deps) YoutubeDL(ctx context.Context, req *ipc.Request, w *ipc.Writer) error {
	start := time.Now()
	if err := util.ValidateYouTubeURL(req.URL); err != nil {
		return errcode.Wrap(errcode.InvalidURL, "unsupported url", err)
	}
	if !d.Limits.Allow(ctx, req.UserChatID, "download") {
		return errcode.New(errcode.RateLimited, "hourly download limit reached")
	}
	d.Users.Touch(ctx, req.UserChatID)

	outputDir := req.ParamString("output_dir", d.Cfg.DownloadDir)
	pol := ytdlp.DownloadPolicy{
		Common:           d.common(),
		URL:              req.URL,
		ExtractAudio:     req.ParamBool("extract_audio", false),
		AudioFormat:      req.ParamString("audio_format", "mp3"),
		AudioQuality:     req.ParamString("audio_quality", "0"),
		Format:           req.ParamString("format", ""),
		BestAudioLimitMB: d.Cfg.BestAudioLimitMB,
		OutputDir:        outputDir,
	}

	parser := progress.NewParser()
	var destination string
	runErr := d.Runner.Run(ctx, pol.Args(), nil, func(line string) {
		frame, ok := parser.Feed(line)
		if !ok {
			return
		}
		switch frame.Kind {
		case progress.KindProgress:
			status := frame.Status
			if status == "" {
				status = "downloading"
			}
			w.Progress(req.TaskID, frame.Percent, frame.Speed, frame.ETA, status)
		case progress.KindDestination:
			destination = frame.Destination
		case progress.KindDone:
			if frame.Destination != "" {
				destination = frame.Destination
			}
			w.Progress(req.TaskID, 100, frame.Speed, 0, "done")
		}
	})
	if runErr != nil {
		d.Users.RecordUsage(ctx, req.UserChatID, req.Action, time.Since(start), false,
			string(errcode.CodeOf(runErr)))
		return runErr
	}

	filePath, err := d.locateResult(destination, outputDir, start)
	if err != nil {
		return err
	}
	filePath = d.ingest(ctx, req, filePath)

	fi, err := os.Stat(filePath)
	if err != nil {
		return errcode.Wrap(errcode.FileNotFound, "result vanished", err)
	}
	d.Users.AddHistory(ctx, req.UserChatID, filepath.Base(filePath), req.URL, filePath, fi.Size())
	d.Users.RecordUsage(ctx, req.UserChatID, req.Action, time.Since(start), true, "")

	w.Send(req.TaskID, ipc.EventDone, map[string]any{
		"file_path": filePath,
		"file_size": fi.Size(),
		"filename":  filepath.Base(filePath),
	})
	return nil
}

// locateResult resolves the downloaded file: the parser-announced
// destination first, else the newest media file written since the run
// started.
func (d *Deps) locateResult(destination, outputDir string, since time.Time) (string, error) {
	if destination != "" {
		if _, err := os.Stat(destination); err == nil {
			return destination, nil
		}
		// audio extraction renames the announced file; fall through
	}
	newest, err := util.NewestMediaFile(outputDir, since.Add(-time.Minute))
	if err != nil || newest == "" {
		return "", errcode.New(errcode.FileNotFound,
			fmt.Sprintf("no media file found in %s", outputDir))
	}
	return newest, nil
}

// ingest hands the file to the storage pool when the user participates
// in dedup; pool failures fall back to the plain file.
func (d *Deps) ingest(ctx context.Context, req *ipc.Request, filePath string) string {
	if !d.Users.DedupEnabled(ctx, req.UserChatID) {
		return filePath
	}
	res, err := d.Pool.StoreOrLink(ctx, pool.LinkRequest{
		SourceFile: filePath,
		TargetPath: filePath,
		UserChatID: req.UserChatID,
		OriginURL:  req.URL,
		Title:      filepath.Base(filePath),
		UseSymlink: true,
	})
	if err != nil {
		d.log.Warn().Err(err).Str("file", filePath).Msg("pool ingestion failed, serving plain file")
		return filePath
	}
	d.log.Debug().Str("hash", res.Hash).Bool("dedup", res.Deduplicated).Msg("result ingested")
	return filePath
}
