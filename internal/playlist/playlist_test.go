package playlist

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"mix list with seed suffix",
			"https://www.youtube.com/playlist?list=RDEgBJmlPo8Xw",
			"https://www.youtube.com/watch?v=EgBJmlPo8Xw&list=RDEgBJmlPo8Xw&start_radio=1",
		},
		{
			"v param wins over suffix",
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=RDEgBJmlPo8Xw",
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=RDEgBJmlPo8Xw&start_radio=1",
		},
		{
			"my-mix list keeps prefix, seed from v",
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=RDMMdQw4w9WgXcQ",
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=RDMMdQw4w9WgXcQ&start_radio=1",
		},
		{
			"special prefix without v param stays unchanged",
			"https://www.youtube.com/playlist?list=RDMMdQw4w9WgXcQ",
			"https://www.youtube.com/playlist?list=RDMMdQw4w9WgXcQ",
		},
		{
			"suffix of wrong length stays unchanged",
			"https://www.youtube.com/playlist?list=RDshort",
			"https://www.youtube.com/playlist?list=RDshort",
		},
		{
			"regular playlist untouched",
			"https://www.youtube.com/playlist?list=PLabc123",
			"https://www.youtube.com/playlist?list=PLabc123",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeURL(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := NormalizeURL(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestIsRadioMix(t *testing.T) {
	if !IsRadioMix("https://www.youtube.com/watch?v=x&list=RDEgBJmlPo8Xw") {
		t.Error("RD list should be a mix")
	}
	if IsRadioMix("https://www.youtube.com/playlist?list=PLabc") {
		t.Error("PL list is not a mix")
	}
}

func TestArchiveReadWrite(t *testing.T) {
	a := Archive{Path: filepath.Join(t.TempDir(), "archive.txt")}

	ids, err := a.Read()
	if err != nil || ids != nil {
		t.Fatalf("missing archive: ids=%v err=%v", ids, err)
	}

	want := []string{"dQw4w9WgXcQ", "EgBJmlPo8Xw"}
	if err := a.Write(want); err != nil {
		t.Fatal(err)
	}
	ids, err = a.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("roundtrip = %v, want %v", ids, want)
	}

	// junk lines are skipped
	os.WriteFile(a.Path, []byte("youtube aaa\n\nnot-a-line\nyoutube bbb\n"), 0o644)
	ids, _ = a.Read()
	if !reflect.DeepEqual(ids, []string{"aaa", "bbb"}) {
		t.Errorf("junk handling = %v", ids)
	}
}

type fakeIndex struct {
	paths   map[string]string // id -> path ("" means row without checking disk)
	deleted []string
}

func (f *fakeIndex) PathForVideoID(_ context.Context, id string) (string, bool, error) {
	p, ok := f.paths[id]
	return p, ok, nil
}

func (f *fakeIndex) DeleteRowsForVideoID(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func TestArchiveValidate(t *testing.T) {
	dir := t.TempDir()
	alive := filepath.Join(dir, "alive.mp3")
	os.WriteFile(alive, []byte("x"), 0o644)

	a := Archive{Path: filepath.Join(dir, "archive.txt")}
	a.Write([]string{"liveId00001", "deadId00001", "unknownId01"})

	idx := &fakeIndex{paths: map[string]string{
		"liveId00001": alive,
		"deadId00001": filepath.Join(dir, "gone.mp3"),
	}}
	kept, err := a.Validate(context.Background(), idx)
	if err != nil {
		t.Fatal(err)
	}
	// entry with a live file stays, entry with a lost file drops, entry
	// with no pool row at all stays
	if !reflect.DeepEqual(kept, []string{"liveId00001", "unknownId01"}) {
		t.Errorf("kept = %v", kept)
	}
	if !reflect.DeepEqual(idx.deleted, []string{"deadId00001"}) {
		t.Errorf("deleted rows = %v", idx.deleted)
	}
	onDisk, _ := a.Read()
	if !reflect.DeepEqual(onDisk, kept) {
		t.Errorf("archive not rewritten: %v", onDisk)
	}
}

func TestArchiveCachedHits(t *testing.T) {
	dir := t.TempDir()
	pooled := filepath.Join(dir, "pooled.mp3")
	os.WriteFile(pooled, []byte("x"), 0o644)

	a := Archive{Path: filepath.Join(dir, "archive.txt")}
	a.Write([]string{"hitId000001", "lostId00001"})

	idx := &fakeIndex{paths: map[string]string{"hitId000001": pooled}}
	hits, err := a.CachedHits(context.Background(), idx,
		[]string{"hitId000001", "lostId00001", "newId000001"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits["hitId000001"] != pooled {
		t.Errorf("hits = %v", hits)
	}
	// the unlocatable archived id is evicted so it downloads again
	onDisk, _ := a.Read()
	if !reflect.DeepEqual(onDisk, []string{"hitId000001"}) {
		t.Errorf("archive after scan = %v", onDisk)
	}
}

func TestParseProbe(t *testing.T) {
	raw := `{"title":"Road Trip","playlist_count":3,"entries":[
		{"id":"aaa","title":"One"},{"id":"bbb","title":"Two"},{"id":"","title":"broken"}]}`
	m, err := parseProbe(raw)
	if err != nil {
		t.Fatal(err)
	}
	if m.Title != "Road Trip" || m.Count != 3 || len(m.Entries) != 2 {
		t.Errorf("meta = %+v", m)
	}
	if m.Entries[1].ID != "bbb" || m.Entries[1].Title != "Two" {
		t.Errorf("entries = %+v", m.Entries)
	}

	// count falls back to entry count
	m2, err := parseProbe(`{"title":"x","entries":[{"id":"a"},{"id":"b"}]}`)
	if err != nil || m2.Count != 2 {
		t.Errorf("fallback count = %+v err=%v", m2, err)
	}

	if _, err := parseProbe("not json"); err == nil {
		t.Error("garbage should not parse")
	}
}

func TestParsePreview(t *testing.T) {
	p := parsePreview([]string{
		"Chill Vibes|42",
		"1\tFirst Song",
		"2\tSecond Song",
		"Chill Vibes|42", // printed per entry, only the first counts
		"3\tNA",          // unavailable entry
	})
	if p.Name != "Chill Vibes" || p.Total != 42 {
		t.Errorf("header = %q / %d", p.Name, p.Total)
	}
	if !reflect.DeepEqual(p.Tracks, []string{"First Song", "Second Song"}) {
		t.Errorf("tracks = %v", p.Tracks)
	}

	// NA count falls back to the number of parsed tracks
	p2 := parsePreview([]string{"NA|NA", "1\tOnly"})
	if p2.Name != "Unknown Playlist" || p2.Total != 1 {
		t.Errorf("NA header = %q / %d", p2.Name, p2.Total)
	}
}
