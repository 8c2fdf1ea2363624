// Package ipc speaks the line-delimited JSON protocol with the parent
// process: one request object per stdin line, one response envelope per
// stdout line. Stdout carries nothing but protocol frames; all logging
// goes to stderr.
package ipc

import "strconv"

// Request is one parsed stdin line. Unknown extra fields are ignored.
type Request struct {
	TaskID     string         `json:"task_id"`
	Action     string         `json:"action"`
	URL        string         `json:"url,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	UserChatID int64          `json:"user_chat_id,omitempty"`
}

// Response is the envelope of every stdout frame.
type Response struct {
	TaskID string `json:"task_id"`
	Event  string `json:"event"`
	Data   any    `json:"data"`
}

// Event kinds emitted by handlers.
const (
	EventProgress     = "progress"
	EventDone         = "done"
	EventError        = "error"
	EventSearch       = "search_results"
	EventVideoInfo    = "video_info"
	EventFormatList   = "format_list"
	EventCacheStats   = "cache_stats"
	EventHealthOK     = "health_ok"
	EventCacheCleanup = "cache_cleanup_done"
)

// ParamString returns params[key] as a string, or def when absent or of
// the wrong type.
func (r *Request) ParamString(key, def string) string {
	if v, ok := r.Params[key].(string); ok {
		return v
	}
	return def
}

// ParamBool returns params[key] as a bool, or def.
func (r *Request) ParamBool(key string, def bool) bool {
	if v, ok := r.Params[key].(bool); ok {
		return v
	}
	return def
}

// ParamInt returns params[key] as an int, or def. JSON numbers decode
// as float64; integral strings are accepted too since some parents
// stringify everything.
func (r *Request) ParamInt(key string, def int) int {
	switch v := r.Params[key].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
