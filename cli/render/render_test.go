package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/smanolloff/qwop-gym/recording"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"table", FormatTable, false},
		{"yaml", FormatYAML, false},
		{"", "", false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	_, err := ParseFormat("csv")
	if err == nil || !strings.Contains(err.Error(), "json, table, or yaml") {
		t.Errorf("ParseFormat(csv) error = %v, want valid formats listed", err)
	}
}

func testEpisodes() EpisodeList {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return EpisodeList{
		{EpisodeID: "ep-1", Session: "sess-a", Seed: 7, Steps: 40, Distance: 12.5, Time: 8, TotalReward: -11, StartedAt: start},
		{EpisodeID: "ep-2", Session: "sess-a", Seed: 8, Steps: 300, Distance: 101.25, Time: 60, TotalReward: 58, Success: true, StartedAt: start},
	}
}

func TestRenderer_EpisodeTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)
	if err := r.Render(testEpisodes()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "EPISODE_ID") {
		t.Errorf("header = %q, want EPISODE_ID first", lines[0])
	}
	if !strings.Contains(lines[2], "101.25") || !strings.Contains(lines[2], "success") {
		t.Errorf("row = %q, want distance and outcome", lines[2])
	}
	if !strings.Contains(lines[1], "fail") {
		t.Errorf("row = %q, want fail outcome", lines[1])
	}
}

func TestRenderer_EmptyEpisodeTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)
	if err := r.Render(EpisodeList{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("output = %q, want (no results)", buf.String())
	}
}

func TestRenderer_EpisodeJSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatJSON, false, &buf)
	if err := r.Render(testEpisodes()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	var decoded []recording.EpisodeSummary
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[1].Seed != 8 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestRenderer_YAML(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatYAML, false, &buf)
	if err := r.Render(recording.Stats(testEpisodes())); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got := buf.String()
	for _, want := range []string{"episodes: 2", "success_rate: 0.5", "best_episode: ep-2"} {
		if !strings.Contains(got, want) {
			t.Errorf("YAML output missing %q:\n%s", want, got)
		}
	}
}

func TestRenderer_StructTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	type result struct {
		Steps    int     `json:"steps"`
		Rate     float64 `json:"steps_per_second"`
		internal int
	}
	if err := r.Render(result{Steps: 1000, Rate: 512.5}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "steps:") || !strings.Contains(got, "1000") {
		t.Errorf("output missing steps: %s", got)
	}
	if !strings.Contains(got, "steps_per_second:") || !strings.Contains(got, "512.5") {
		t.Errorf("output missing rate: %s", got)
	}
	if strings.Contains(got, "internal") {
		t.Errorf("output includes unexported field: %s", got)
	}
}

func TestRenderer_ReplayTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)
	rows := ReplayList{{
		ReplayResult:     recording.ReplayResult{EpisodeID: "ep-1", Steps: 3, Distance: 30},
		RecordedDistance: 30,
		Match:            true,
	}}
	if err := r.Render(rows); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "true") {
		t.Errorf("output = %q, want match column", buf.String())
	}
}

func TestRenderTUI_Unsupported(t *testing.T) {
	r := NewRendererWithWriter(FormatJSON, false, &bytes.Buffer{})
	if err := r.RenderTUI("version", nil); err == nil {
		t.Error("expected error for unsupported TUI view")
	}
}
