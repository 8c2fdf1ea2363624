// Package progress turns extractor stderr lines into typed frames.
//
// The parser is a per-download state machine: it remembers the last
// percent/speed/eta so partial lines keep prior values, and it throttles
// plain progress frames so IPC traffic stays bounded no matter how fast
// the child writes.
package progress

import (
	"regexp"
	"strconv"
	"strings"
)

type Kind int

const (
	KindProgress Kind = iota
	KindDestination
	KindDone
	KindError
)

// Frame is one outward-facing event derived from a child output line.
type Frame struct {
	Kind        Kind
	Percent     float64
	Speed       string
	ETA         int // seconds
	Status      string
	Destination string
	ErrorLine   string
}

var (
	ansiRe    = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	fullRe    = regexp.MustCompile(`\[download\]\s+(\d+\.\d+)%.*?at\s+(\S+)\s+ETA\s+(\S+)`)
	simpleRe  = regexp.MustCompile(`\[download\]\s+(\d+\.\d+)%`)
	convertRe = regexp.MustCompile(`\[ExtractAudio\].*Converting`)
	destRe    = regexp.MustCompile(`\[(?:ExtractAudio|download|Merger)\]\s+Destination:\s+(.+)`)
	alreadyRe = regexp.MustCompile(`\[download\]\s+(.+?)\s+has already been downloaded`)
)

// Parser consumes one line at a time via Feed. Not safe for concurrent
// use; each download owns one Parser.
type Parser struct {
	percent float64
	speed   string
	eta     int
	status  string

	emitted     float64 // percent at last emitted progress frame
	sinceEmit   int     // updates swallowed since last emission
	emittedOnce bool
}

func NewParser() *Parser {
	return &Parser{status: "processing"}
}

// Feed parses one stderr line. The returned frame is valid only when
// emit is true. Destination, done and error frames are always emitted;
// plain progress is emitted when percent moved >=5 points or every
// second swallowed update.
func (p *Parser) Feed(line string) (Frame, bool) {
	line = strings.TrimSpace(ansiRe.ReplaceAllString(line, ""))
	if line == "" {
		return Frame{}, false
	}

	if strings.Contains(line, "ERROR") {
		return Frame{Kind: KindError, ErrorLine: line}, true
	}

	if m := alreadyRe.FindStringSubmatch(line); m != nil {
		p.percent = 100
		p.status = "done"
		return Frame{Kind: KindDone, Percent: 100, Status: "done", Destination: m[1]}, true
	}

	if m := destRe.FindStringSubmatch(line); m != nil {
		return Frame{Kind: KindDestination, Destination: strings.TrimSpace(m[1])}, true
	}

	if convertRe.MatchString(line) {
		p.status = "converting"
		p.percent = min(p.percent+2, 95)
		return p.progressFrame(), true
	}

	if strings.Contains(line, "[download]") && strings.Contains(line, "100%") {
		p.percent = 100
		p.status = "done"
		return p.progressFrame(), true
	}

	if m := fullRe.FindStringSubmatch(line); m != nil {
		p.setPercent(m[1])
		p.speed = m[2]
		p.eta = ParseETA(m[3])
		return p.maybeEmit()
	}

	if m := simpleRe.FindStringSubmatch(line); m != nil {
		p.setPercent(m[1])
		return p.maybeEmit()
	}

	return Frame{}, false
}

func (p *Parser) setPercent(s string) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return
	}
	// never go backwards: late fragment lines must not regress the bar
	if v > p.percent {
		p.percent = v
	}
}

func (p *Parser) maybeEmit() (Frame, bool) {
	p.sinceEmit++
	if !p.emittedOnce || p.percent-p.emitted >= 5 || p.sinceEmit >= 2 {
		return p.progressFrame(), true
	}
	return Frame{}, false
}

func (p *Parser) progressFrame() Frame {
	p.emitted = p.percent
	p.emittedOnce = true
	p.sinceEmit = 0
	status := p.status
	if status == "" {
		status = "processing"
	}
	return Frame{
		Kind:    KindProgress,
		Percent: p.percent,
		Speed:   p.speed,
		ETA:     p.eta,
		Status:  status,
	}
}

// ParseETA accepts "M:SS" and "H:MM:SS"; anything else (including
// "Unknown") is 0.
func ParseETA(s string) int {
	parts := strings.Split(strings.TrimSpace(s), ":")
	switch len(parts) {
	case 2:
		m, err1 := strconv.Atoi(parts[0])
		sec, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return 0
		}
		return m*60 + sec
	case 3:
		h, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		sec, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return 0
		}
		return h*3600 + m*60 + sec
	default:
		return 0
	}
}
