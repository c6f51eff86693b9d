// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package importpipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRegistryDetect(t *testing.T) {
	reg := DefaultRegistry()

	cases := []struct {
		path string
		want string
	}{
		{"notes.txt", "text"},
		{"notes.md", "text"},
		{"report.pdf", "pdf"},
		{"letter.docx", "docx"},
		{"data.xlsx", "spreadsheet"},
		{"page.html", "html"},
		{"page.htm", "html"},
		{"mail.eml", "email"},
	}
	for _, c := range cases {
		_, det, ok := reg.DetectBest(c.path)
		if !ok {
			t.Errorf("DetectBest(%q): expected a match", c.path)
			continue
		}
		if det.SourceType != c.want {
			t.Errorf("DetectBest(%q) = %q, want %q", c.path, det.SourceType, c.want)
		}
	}
}

func TestDefaultRegistryRejectsUnsupportedAndTemp(t *testing.T) {
	reg := DefaultRegistry()

	if _, _, ok := reg.DetectBest("archive.zip"); ok {
		t.Error("expected no parser to claim a .zip file")
	}
	if _, _, ok := reg.DetectBest("~$locked.docx"); ok {
		t.Error("expected the temporary-file guard to reject a Word lock file")
	}
}

func TestTextParserParse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	units, err := (TextParser{}).Parse(context.Background(), path, ParseOptions{}, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(units) != 1 || units[0].Text != "hello world" {
		t.Fatalf("unexpected units: %+v", units)
	}
	if units[0].Type != "note" {
		t.Errorf("Type = %q, want note", units[0].Type)
	}
}

func TestTextParserEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (TextParser{}).Parse(context.Background(), path, ParseOptions{}, nil); err == nil {
		t.Error("expected an error for an empty text file")
	}
}

func TestRegistryPrecedenceIsRegistrationOrder(t *testing.T) {
	// A registry with two parsers both claiming the same extension at equal
	// confidence should resolve to whichever was registered first.
	reg := NewRegistry(TextParser{}, stubParser{ext: ".txt", sourceType: "stub", confidence: 1.0})
	_, det, ok := reg.DetectBest("a.txt")
	if !ok {
		t.Fatal("expected a match")
	}
	if det.SourceType != "text" {
		t.Errorf("expected the first-registered parser to win a tie, got %q", det.SourceType)
	}
}

type stubParser struct {
	ext        string
	sourceType string
	confidence float64
}

func (s stubParser) Name() string { return s.sourceType }
func (s stubParser) Detect(path string) (Detection, bool) {
	if filepath.Ext(path) == s.ext {
		return Detection{SourceType: s.sourceType, Confidence: s.confidence}, true
	}
	return Detection{}, false
}
func (s stubParser) Parse(ctx context.Context, path string, opts ParseOptions, progress ProgressFunc) ([]Unit, error) {
	return nil, nil
}
