// Package errcode classifies worker failures into a fixed code table.
// Every failure surfaced over IPC carries one of these codes; the parent
// decides whether to retry based on the category.
package errcode

import (
	"errors"
	"fmt"
	"strings"
)

// Category groups codes by retry semantics.
type Category string

const (
	Transient Category = "TRANSIENT"    // retriable without user action
	Auth      Category = "AUTH_RELATED" // retriable after the user refreshes credentials
	Permanent Category = "PERMANENT"    // retrying cannot help
)

type Code string

const (
	NetworkTimeout     Code = "NETWORK_TIMEOUT"
	ServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	RateLimited        Code = "RATE_LIMITED"
	PartialDownload    Code = "PARTIAL_DOWNLOAD"

	RequireAuth   Code = "REQUIRE_AUTH"
	CookieExpired Code = "COOKIE_EXPIRED"
	LoginRequired Code = "LOGIN_REQUIRED"

	VideoPrivate         Code = "VIDEO_PRIVATE"
	VideoRemoved         Code = "VIDEO_REMOVED"
	RegionBlocked        Code = "REGION_BLOCKED"
	Unavailable          Code = "UNAVAILABLE"
	InvalidURL           Code = "INVALID_URL"
	NoSuitableFormat     Code = "NO_SUITABLE_FORMAT"
	FileSizeExceedsLimit Code = "FILE_SIZE_EXCEEDS_LIMIT"
	FileNotFound         Code = "FILE_NOT_FOUND"
	ConfigError          Code = "CONFIG_ERROR"
	UnknownError         Code = "UNKNOWN_ERROR"
)

// Info describes one code's user-facing and operational semantics.
type Info struct {
	UserMessage string
	Category    Category
	Retriable   bool
}

var table = map[Code]Info{
	NetworkTimeout:     {"The download took too long and was stopped. Please try again.", Transient, true},
	ServiceUnavailable: {"The service is temporarily unavailable. Please try again later.", Transient, true},
	RateLimited:        {"Too many requests. Please wait a moment and try again.", Transient, true},
	PartialDownload:    {"The download was interrupted. Please try again.", Transient, true},

	RequireAuth:   {"This video requires sign-in verification. Updated cookies are needed.", Auth, true},
	CookieExpired: {"The saved cookies have expired. Please provide fresh cookies.", Auth, true},
	LoginRequired: {"This content requires a logged-in account.", Auth, true},

	VideoPrivate:         {"This video is private and cannot be downloaded.", Permanent, false},
	VideoRemoved:         {"This video has been removed or is unavailable.", Permanent, false},
	RegionBlocked:        {"This video is not available in the server's region.", Permanent, false},
	Unavailable:          {"This content is unavailable.", Permanent, false},
	InvalidURL:           {"That does not look like a valid YouTube URL.", Permanent, false},
	NoSuitableFormat:     {"No downloadable format matches the request.", Permanent, false},
	FileSizeExceedsLimit: {"The file is larger than the configured size limit.", Permanent, false},
	FileNotFound:         {"The downloaded file could not be located.", Permanent, false},
	ConfigError:          {"The worker is missing required configuration.", Permanent, false},
	UnknownError:         {"Something went wrong. Please try again.", Permanent, false},
}

// Lookup returns the code's Info; unknown codes map to UnknownError's entry.
func (c Code) Lookup() Info {
	if info, ok := table[c]; ok {
		return info
	}
	return table[UnknownError]
}

// Error is a classified worker failure. Message is the technical detail
// (logged, never shown to end users); the user message comes from the table.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the classification from err, defaulting to UNKNOWN_ERROR.
func CodeOf(err error) Code {
	var we *Error
	if errors.As(err, &we) {
		return we.Code
	}
	return UnknownError
}

// classifiers are checked in order; first substring match wins.
// Phrases are the ones yt-dlp actually prints on stderr.
var classifiers = []struct {
	needle string
	code   Code
}{
	{"sign in to confirm", RequireAuth},
	{"confirm you're not a bot", RequireAuth},
	{"confirm you’re not a bot", RequireAuth},
	{"cookies are no longer valid", CookieExpired},
	{"login required", LoginRequired},
	{"private video", VideoPrivate},
	{"video unavailable", VideoRemoved},
	{"has been removed", VideoRemoved},
	// "The uploader has not made this video available in your country"
	{"available in your country", RegionBlocked},
	{"geo restriction", RegionBlocked},
	{"requested format is not available", NoSuitableFormat},
	{"no suitable format", NoSuitableFormat},
	{"http error 429", RateLimited},
	{"too many requests", RateLimited},
	{"http error 503", ServiceUnavailable},
	{"service unavailable", ServiceUnavailable},
	{"timed out", NetworkTimeout},
	{"connection reset", NetworkTimeout},
	{"unable to download", PartialDownload},
}

// Classify maps collected child stderr to a code by phrase matching.
func Classify(stderr string) Code {
	s := strings.ToLower(stderr)
	for _, c := range classifiers {
		if strings.Contains(s, c.needle) {
			return c.code
		}
	}
	return UnknownError
}
