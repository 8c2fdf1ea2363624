package ipc

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snapetech/mediaworkerr/internal/errcode"
	"github.com/snapetech/mediaworkerr/internal/log"
)

// Writer serialises response frames onto the protocol stream. Handlers
// run concurrently, so every frame is written whole under one lock.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
	log zerolog.Logger
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out, log: log.WithComponent("ipc")}
}

// Send writes one `{task_id, event, data}` frame.
func (w *Writer) Send(taskID, event string, data any) {
	frame, err := json.Marshal(Response{TaskID: taskID, Event: event, Data: data})
	if err != nil {
		w.log.Error().Err(err).Str("task_id", taskID).Str("event", event).Msg("frame marshal failed")
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(append(frame, '\n')); err != nil {
		w.log.Error().Err(err).Msg("frame write failed")
	}
}

// Error reports err as an error frame. The technical message travels in
// `message`; `user_message` is the canned text for the code.
func (w *Writer) Error(taskID string, err error) {
	code := errcode.CodeOf(err)
	info := code.Lookup()
	w.Send(taskID, EventError, map[string]any{
		"error_code":   string(code),
		"message":      err.Error(),
		"user_message": info.UserMessage,
		"category":     string(info.Category),
		"retriable":    info.Retriable,
	})
}

// Progress emits one progress frame.
func (w *Writer) Progress(taskID string, percent float64, speed string, eta int, status string) {
	w.Send(taskID, EventProgress, map[string]any{
		"percent": percent,
		"speed":   speed,
		"eta":     eta,
		"status":  status,
	})
}
