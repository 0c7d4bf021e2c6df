package evidence

import (
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/Tasktrack/internal/domain"
)

func TestValidateUpload(t *testing.T) {
	const mb = 1 << 20
	tests := []struct {
		name    string
		file    string
		size    int64
		max     int64
		wantErr error
	}{
		{name: "2MB pdf", file: "report.pdf", size: 2 * mb},
		{name: "upper-case extension", file: "NOTES.MD", size: 10},
		{name: "exactly at limit", file: "a.csv", size: 10 * mb},
		{name: "12MB file", file: "big.pdf", size: 12 * mb, wantErr: domain.ErrPayloadTooLarge},
		{name: "2MB exe", file: "setup.exe", size: 2 * mb, wantErr: domain.ErrUnsupportedType},
		{name: "no extension", file: "README", size: 1, wantErr: domain.ErrUnsupportedType},
		{name: "empty name", file: " ", size: 1, wantErr: domain.ErrValidation},
		{name: "custom limit", file: "a.txt", size: 2048, max: 1024, wantErr: domain.ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.file, tt.size, tt.max)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSummaryReady(t *testing.T) {
	var nilEv *Evidence
	if nilEv.SummaryReady() {
		t.Error("nil evidence must not be ready")
	}

	ev := &Evidence{Filename: "a.txt", SummaryState: SummaryPending}
	if ev.SummaryReady() {
		t.Error("pending evidence must not be ready")
	}

	ev.SummaryState = SummaryReady
	if ev.SummaryReady() {
		t.Error("ready state without summary must not report ready")
	}

	ev.Summary = &Summary{Summary: "All deliverables present."}
	if !ev.SummaryReady() {
		t.Error("expected ready once a summary is recorded")
	}

	ev.SummaryState = SummaryFailed
	if ev.SummaryReady() {
		t.Error("failed evidence must not be ready")
	}
}

func TestIsText(t *testing.T) {
	for name, want := range map[string]bool{
		"a.txt": true, "b.MD": true, "c.log": true, "d.csv": true,
		"e.pdf": false, "f.docx": false, "g.xlsx": false,
	} {
		if got := IsText(name); got != want {
			t.Errorf("IsText(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFallbackSummary(t *testing.T) {
	s := FallbackSummary("scan.PDF")
	if s.Summary != "Document uploaded: scan.PDF" {
		t.Errorf("summary = %q", s.Summary)
	}
	if s.DocumentType != "pdf" {
		t.Errorf("document type = %q, want pdf", s.DocumentType)
	}
}

func TestApplySummaryResult(t *testing.T) {
	ev := &Evidence{Filename: "a.txt", ContentID: "abc", SummaryState: SummaryPending}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if ev.Apply(&SummaryResult{ContentID: "other", State: SummaryReady, Summary: &Summary{Summary: "x"}, At: at}) {
		t.Fatal("result for other content must be ignored")
	}
	if ev.SummaryState != SummaryPending {
		t.Fatalf("state changed to %s", ev.SummaryState)
	}

	if !ev.Apply(&SummaryResult{ContentID: "abc", State: SummaryReady, Summary: &Summary{Summary: "x"}, At: at}) {
		t.Fatal("matching result should apply")
	}
	if !ev.SummaryReady() || !ev.SummarizedAt.Equal(at) {
		t.Fatalf("evidence = %+v", ev)
	}

	if !ev.Apply(&SummaryResult{ContentID: "abc", State: SummaryFailed, Error: "llm down", At: at}) {
		t.Fatal("failed result should apply")
	}
	if ev.SummaryReady() || ev.SummaryError != "llm down" {
		t.Fatalf("evidence = %+v", ev)
	}
}
