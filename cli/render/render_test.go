package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type row struct {
	ID     string `json:"id"`
	Frames int    `json:"frame_count"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
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
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatJSON, &buf)

	if err := r.Render([]row{{ID: "2026-08-25/140210", Frames: 412}}); err != nil {
		t.Fatalf("render: %v", err)
	}

	var got []row
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(got) != 1 || got[0].ID != "2026-08-25/140210" {
		t.Errorf("unexpected round trip %+v", got)
	}
}

func TestRender_TableUsesJSONTagHeaders(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)

	if err := r.Render([]row{{ID: "a", Frames: 1}, {ID: "b", Frames: 2}}); err != nil {
		t.Fatalf("render: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "id") || !strings.Contains(out, "frame_count") {
		t.Errorf("missing headers in %q", out)
	}
	if !strings.Contains(out, "a") || !strings.Contains(out, "b") {
		t.Errorf("missing rows in %q", out)
	}
}

func TestRender_TableEmptySlice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)

	if err := r.Render([]row{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("expected empty marker, got %q", buf.String())
	}
}

func TestRender_StructTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)

	if err := r.Render(row{ID: "x", Frames: 3}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "id:") {
		t.Errorf("expected key:value layout, got %q", buf.String())
	}
}

func TestRender_YAML(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatYAML, &buf)

	if err := r.Render(row{ID: "x", Frames: 3}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "id: x") {
		t.Errorf("unexpected yaml %q", buf.String())
	}
}
