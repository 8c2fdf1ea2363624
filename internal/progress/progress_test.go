package progress

import "testing"

func TestFeed_fullProgressLine(t *testing.T) {
	p := NewParser()
	f, emit := p.Feed("[download]  12.5% of 4.00MiB at 1.25MiB/s ETA 00:30")
	if !emit {
		t.Fatal("first progress line should emit")
	}
	if f.Kind != KindProgress || f.Percent != 12.5 || f.Speed != "1.25MiB/s" || f.ETA != 30 {
		t.Errorf("frame = %+v", f)
	}
}

func TestFeed_simpleLineKeepsPriorSpeed(t *testing.T) {
	p := NewParser()
	p.Feed("[download]  10.0% of 4.00MiB at 2.00MiB/s ETA 1:30")
	f, emit := p.Feed("[download]  20.0%")
	if !emit {
		t.Fatal("second line should emit (>=5 point jump)")
	}
	if f.Speed != "2.00MiB/s" || f.ETA != 90 {
		t.Errorf("prior speed/eta not kept: %+v", f)
	}
}

func TestFeed_throttling(t *testing.T) {
	p := NewParser()
	if _, emit := p.Feed("[download]  10.0%"); !emit {
		t.Fatal("first update should emit")
	}
	// +1 point, first swallowed update: suppressed
	if _, emit := p.Feed("[download]  11.0%"); emit {
		t.Error("small delta should be throttled")
	}
	// second consecutive swallowed update: emitted
	if _, emit := p.Feed("[download]  12.0%"); !emit {
		t.Error("every second swallowed update should emit")
	}
	// big jump emits immediately
	if _, emit := p.Feed("[download]  40.0%"); !emit {
		t.Error(">=5 point jump should emit")
	}
}

func TestFeed_monotonicPercent(t *testing.T) {
	p := NewParser()
	p.Feed("[download]  50.0%")
	// fragment downloads restart their own percent; the bar must not regress
	f, emit := p.Feed("[download]  10.0%")
	if emit && f.Percent < 50 {
		t.Errorf("percent regressed to %v", f.Percent)
	}
	f, _ = p.Feed("[download]  60.0%")
	if f.Percent != 60 {
		t.Errorf("percent = %v, want 60", f.Percent)
	}
}

func TestFeed_converting(t *testing.T) {
	p := NewParser()
	p.Feed("[download]  90.0%")
	f, emit := p.Feed("[ExtractAudio] Converting audio; Destination will follow")
	if !emit {
		t.Fatal("converting should emit")
	}
	if f.Status != "converting" || f.Percent != 92 {
		t.Errorf("frame = %+v", f)
	}
	// capped at 95
	p2 := NewParser()
	p2.Feed("[download]  94.5%")
	f, _ = p2.Feed("[ExtractAudio] Converting")
	if f.Percent != 95 {
		t.Errorf("converting cap: %v", f.Percent)
	}
}

func TestFeed_destination(t *testing.T) {
	p := NewParser()
	for _, line := range []string{
		"[download] Destination: /tmp/out/song.webm",
		"[ExtractAudio] Destination: /tmp/out/song.mp3",
		"[Merger] Merging formats into \"/tmp/out/video.mp4\"",
	} {
		f, emit := p.Feed(line)
		if line[1] == 'M' {
			// Merger line without "Destination:" is not a destination
			if emit && f.Kind == KindDestination {
				t.Errorf("merging line misparsed: %+v", f)
			}
			continue
		}
		if !emit || f.Kind != KindDestination {
			t.Errorf("line %q: frame=%+v emit=%v", line, f, emit)
		}
	}
}

func TestFeed_alreadyDownloaded(t *testing.T) {
	p := NewParser()
	f, emit := p.Feed("[download] /tmp/out/song.mp3 has already been downloaded")
	if !emit || f.Kind != KindDone {
		t.Fatalf("frame=%+v emit=%v", f, emit)
	}
	if f.Destination != "/tmp/out/song.mp3" || f.Percent != 100 {
		t.Errorf("frame = %+v", f)
	}
}

func TestFeed_errorLine(t *testing.T) {
	p := NewParser()
	f, emit := p.Feed("ERROR: [youtube] abc: Video unavailable")
	if !emit || f.Kind != KindError {
		t.Fatalf("frame=%+v emit=%v", f, emit)
	}
	if f.ErrorLine != "ERROR: [youtube] abc: Video unavailable" {
		t.Errorf("error line = %q", f.ErrorLine)
	}
}

func TestFeed_hundredPercentIsDone(t *testing.T) {
	p := NewParser()
	f, emit := p.Feed("[download] 100% of 4.00MiB in 00:03")
	if !emit {
		t.Fatal("100% should always emit")
	}
	if f.Percent != 100 || f.Status != "done" {
		t.Errorf("frame = %+v", f)
	}
}

func TestFeed_ansiStripped(t *testing.T) {
	p := NewParser()
	f, emit := p.Feed("\x1b[0;32m[download]  33.3% of 1.00MiB at 500KiB/s ETA 00:10\x1b[0m")
	if !emit || f.Percent != 33.3 {
		t.Errorf("frame=%+v emit=%v", f, emit)
	}
}

func TestFeed_irrelevantLines(t *testing.T) {
	p := NewParser()
	for _, line := range []string{
		"",
		"[youtube] dQw4w9WgXcQ: Downloading webpage",
		"[info] Testing format 251",
	} {
		if _, emit := p.Feed(line); emit {
			t.Errorf("line %q should not emit", line)
		}
	}
}

func TestParseETA(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"0:30", 30},
		{"00:30", 30},
		{"1:02:03", 3723},
		{"Unknown", 0},
		{"", 0},
		{"abc:def", 0},
	}
	for _, tc := range cases {
		if got := ParseETA(tc.in); got != tc.want {
			t.Errorf("ParseETA(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
