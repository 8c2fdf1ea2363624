package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"

	"github.com/snapetech/mediaworkerr/internal/errcode"
)

// HandlerFunc serves one request. A returned error becomes an error
// frame for the request's task id.
type HandlerFunc func(ctx context.Context, req *Request, w *Writer) error

// Mux routes requests by action.
type Mux struct {
	handlers map[string]HandlerFunc
}

func NewMux() *Mux {
	return &Mux{handlers: make(map[string]HandlerFunc)}
}

func (m *Mux) Handle(action string, h HandlerFunc) {
	m.handlers[action] = h
}

// Actions returns the registered action names, for health reporting.
func (m *Mux) Actions() []string {
	actions := make([]string, 0, len(m.handlers))
	for a := range m.handlers {
		actions = append(actions, a)
	}
	return actions
}

// maxLine caps a single request line; anything longer is rejected,
// never fatal to the loop.
const maxLine = 1024 * 1024

// Serve reads requests from in until EOF, dispatching each on its own
// goroutine so a slow download never blocks the next request. Malformed
// or oversize lines are answered with an error frame for task id
// "unknown" and the loop keeps going. Returns once stdin is closed and
// all in-flight handlers finished.
func (m *Mux) Serve(ctx context.Context, in io.Reader, w *Writer) error {
	br := bufio.NewReaderSize(in, maxLine)

	var wg sync.WaitGroup
	var readErr error
	for {
		line, err := readLine(br)
		if err == errLineTooLong {
			w.Error("unknown", errcode.New(errcode.UnknownError,
				fmt.Sprintf("request line exceeds %d bytes", maxLine)))
			continue
		}
		if err != nil {
			if err != io.EOF {
				readErr = err
			}
			break
		}
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			w.Error("unknown", errcode.Wrap(errcode.UnknownError, "malformed request line", err))
			continue
		}
		if req.TaskID == "" {
			req.TaskID = "unknown"
		}

		h, ok := m.handlers[req.Action]
		if !ok {
			w.Error(req.TaskID, errcode.New(errcode.UnknownError,
				fmt.Sprintf("unknown action %q", req.Action)))
			continue
		}

		wg.Add(1)
		go func(req Request) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					w.Error(req.TaskID, errcode.New(errcode.UnknownError,
						fmt.Sprintf("handler panic: %v", r)))
					debug.PrintStack()
				}
			}()
			if err := h(ctx, &req, w); err != nil {
				w.Error(req.TaskID, err)
			}
		}(req)
	}
	wg.Wait()
	return readErr
}

var errLineTooLong = errors.New("request line too long")

// readLine yields one newline-delimited line without its terminator.
// A line that overflows the reader's buffer is consumed to its end and
// reported as errLineTooLong; a final unterminated line is yielded
// before io.EOF.
func readLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		for err == bufio.ErrBufferFull {
			_, err = br.ReadSlice('\n')
		}
		if err != nil && err != io.EOF {
			return nil, err
		}
		return nil, errLineTooLong
	}
	trimmed := bytes.TrimRight(line, "\r\n")
	if err == io.EOF && len(trimmed) > 0 {
		return trimmed, nil
	}
	if err != nil {
		return nil, err
	}
	return trimmed, nil
}
