package handler

import (
	"context"
	"fmt"

	"github.com/snapetech/mediaworkerr/internal/errcode"
	"github.com/snapetech/mediaworkerr/internal/ipc"
	"github.com/snapetech/mediaworkerr/internal/upload"
)

// MProtoUpload serves mtproto_upload: push a finished file to the
// user's channel, skipping the transfer when the same bytes were
// uploaded before.
func (d *Deps) MProtoUpload(ctx context.Context, req *ipc.Request, w *ipc.Writer) error {
	filePath := req.ParamString("file_path", "")
	if filePath == "" {
		return errcode.New(errcode.FileNotFound, "file_path param missing")
	}

	msgID, cached, err := d.Upload.Run(ctx, filePath, func(p upload.Progress) {
		w.Progress(req.TaskID, p.Percent,
			fmt.Sprintf("%.1fMB/s", p.SpeedMB), 0, "uploading")
	})
	if err != nil {
		return err
	}
	w.Send(req.TaskID, ipc.EventDone, map[string]any{
		"channel_msg_id": msgID,
		"cached":         cached,
	})
	return nil
}
