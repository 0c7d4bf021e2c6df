package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/evidence"
	"github.com/Strob0t/Tasktrack/internal/domain/task"
	"github.com/Strob0t/Tasktrack/internal/port/messagequeue"
)

func TestDocumentServiceAttachValidation(t *testing.T) {
	f := newFixture()
	docs := NewDocumentService(f.store, f.files, f.queue, nil, 16)
	tk := &task.Task{ID: "t1", OrgID: testOrg}

	tests := []struct {
		name    string
		up      Upload
		wantErr error
	}{
		{"declared too large", Upload{Filename: "a.txt", Size: 17, Body: strings.NewReader("x")}, domain.ErrPayloadTooLarge},
		{"body larger than declared", Upload{Filename: "a.txt", Size: 1, Body: strings.NewReader(strings.Repeat("x", 40))}, domain.ErrPayloadTooLarge},
		{"executable", Upload{Filename: "setup.exe", Size: 1, Body: strings.NewReader("x")}, domain.ErrUnsupportedType},
		{"no name", Upload{Filename: " ", Size: 1, Body: strings.NewReader("x")}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := docs.Attach(context.Background(), tk, &tt.up)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if f.files.count() != 0 {
		t.Fatalf("rejected uploads were stored")
	}
}

func TestDocumentServiceAttachIsContentAddressed(t *testing.T) {
	f := newFixture()
	tk := &task.Task{ID: "t1", OrgID: testOrg}
	body := "line one\nline two\n"
	sum := sha256.Sum256([]byte(body))
	want := hex.EncodeToString(sum[:])

	for range 2 {
		ev, err := f.docs.Attach(context.Background(), tk, &Upload{
			Filename: "../../notes/Report.MD",
			Size:     int64(len(body)),
			Body:     strings.NewReader(body),
		})
		if err != nil {
			t.Fatalf("attach: %v", err)
		}
		if ev.ContentID != want || ev.Filename != "Report.MD" || ev.Size != int64(len(body)) {
			t.Fatalf("evidence = %+v", ev)
		}
		if ev.StorageRef != "mem://"+testOrg+"/"+want+".md" {
			t.Fatalf("storage ref = %s", ev.StorageRef)
		}
	}
	if f.files.count() != 1 {
		t.Fatalf("stored objects = %d, want 1", f.files.count())
	}
}

func TestDocumentServiceRequestSummaryPublishFailure(t *testing.T) {
	f := newFixture()
	doc := &evidence.Evidence{Filename: "r.txt", ContentID: "c1", StorageRef: "mem://r", SummaryState: evidence.SummaryPending}
	tk := f.seedTask(task.Task{ID: "t1", Status: task.StatusDone, Document: doc})
	f.queue.publishErr = errBoom

	f.docs.RequestSummary(context.Background(), tk)

	got, _ := f.store.GetTask(context.Background(), testOrg, "t1")
	if got.Document.SummaryState != evidence.SummaryFailed || got.Document.SummaryError == "" {
		t.Fatalf("document = %+v", got.Document)
	}
	if got.Status != task.StatusDone || got.Version != 1 {
		t.Fatalf("summary failure touched the lifecycle: %s v%d", got.Status, got.Version)
	}
}

func TestDocumentServiceHandleSummarized(t *testing.T) {
	f := newFixture()
	doc := &evidence.Evidence{Filename: "r.txt", ContentID: "c1", StorageRef: "mem://r", SummaryState: evidence.SummaryPending}
	f.seedTask(task.Task{ID: "t1", Status: task.StatusDone, Document: doc})
	ctx := context.Background()

	stale, _ := json.Marshal(messagequeue.SummaryResultPayload{
		OrgID: testOrg, TaskID: "t1", ContentID: "old", State: "failed", Error: "x",
	})
	if err := f.docs.HandleSummarized(ctx, messagequeue.SubjectDocumentSummarized, stale); err != nil {
		t.Fatalf("stale result must be discarded quietly: %v", err)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ready, _ := json.Marshal(messagequeue.SummaryResultPayload{
		OrgID: testOrg, TaskID: "t1", ContentID: "c1", State: "ready", At: at,
		Summary: &messagequeue.SummaryPayload{Summary: "All good", KeyPoints: []string{"a"}, VerificationRecommendation: "approve"},
	})
	if err := f.docs.HandleSummarized(ctx, messagequeue.SubjectDocumentSummarized, ready); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, _ := f.store.GetTask(ctx, testOrg, "t1")
	if !got.SummaryReady() || got.Document.Summary.Summary != "All good" {
		t.Fatalf("document = %+v", got.Document)
	}
	if !got.Document.SummarizedAt.Equal(at) {
		t.Fatalf("summarized_at = %v", got.Document.SummarizedAt)
	}
	if got.Version != 1 {
		t.Fatalf("summary write-back bumped version to %d", got.Version)
	}
}

func TestDocumentServiceRecordSummaryRejectsPending(t *testing.T) {
	f := newFixture()
	err := f.docs.RecordSummary(context.Background(), &evidence.SummaryResult{
		OrgID: testOrg, TaskID: "t1", ContentID: "c1", State: evidence.SummaryPending,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

// A summary that lands between a write's read and its update must survive
// the update, which carries the stale pending snapshot.
func TestDocumentSummarySurvivesConcurrentTaskWrite(t *testing.T) {
	ctx := context.Background()
	writes := []struct {
		name  string
		write func(f *fixture) (*task.Task, error)
	}{
		{"verify", func(f *fixture) (*task.Task, error) {
			res, err := f.tasks.Transition(ctx, manager, "t1", TransitionRequest{Action: task.ActionVerify})
			if err != nil {
				return nil, err
			}
			return res.Task, nil
		}},
		{"patch", func(f *fixture) (*task.Task, error) {
			return f.tasks.Update(ctx, manager, "t1", &task.Patch{Title: domain.Value("Renamed")}, 0)
		}},
		{"block", func(f *fixture) (*task.Task, error) {
			return f.tasks.Update(ctx, manager, "t1", &task.Patch{Status: domain.Value(task.StatusBlocked)}, 0)
		}},
	}
	for _, tt := range writes {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			doc := &evidence.Evidence{Filename: "r.txt", ContentID: "c1", StorageRef: "mem://r", SummaryState: evidence.SummaryPending}
			f.seedTask(task.Task{ID: "t1", AssignedTo: "U7", Status: task.StatusDone, Document: doc})

			f.store.beforeUpdate = func() {
				err := f.docs.RecordSummary(ctx, &evidence.SummaryResult{
					OrgID: testOrg, TaskID: "t1", ContentID: "c1", State: evidence.SummaryReady,
					Summary: &evidence.Summary{Summary: "Signed checklist"}, At: time.Now(),
				})
				if err != nil {
					t.Errorf("record summary: %v", err)
				}
			}
			returned, err := tt.write(f)
			if err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			if !returned.SummaryReady() {
				t.Fatalf("returned document = %+v", returned.Document)
			}
			got, _ := f.store.GetTask(ctx, testOrg, "t1")
			if !got.SummaryReady() || got.Document.Summary.Summary != "Signed checklist" {
				t.Fatalf("stored document = %+v", got.Document)
			}
			if got.Version != 2 {
				t.Fatalf("version = %d, want 2", got.Version)
			}
		})
	}
}

// Replacing the document still resets the summary.
func TestDocumentReplacementResetsSummary(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	at := time.Now()
	doc := &evidence.Evidence{
		Filename: "old.txt", ContentID: "c1", StorageRef: "mem://old",
		SummaryState: evidence.SummaryReady, Summary: &evidence.Summary{Summary: "old"}, SummarizedAt: &at,
	}
	tk := f.seedTask(task.Task{ID: "t1", AssignedTo: "U7", Status: task.StatusDone, Document: doc})

	tk.Document = &evidence.Evidence{Filename: "new.txt", ContentID: "c2", StorageRef: "mem://new", SummaryState: evidence.SummaryPending}
	if err := f.store.UpdateTask(ctx, tk, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := f.store.GetTask(ctx, testOrg, "t1")
	if got.Document.SummaryState != evidence.SummaryPending || got.Document.Summary != nil || got.Document.SummarizedAt != nil {
		t.Fatalf("document = %+v", got.Document)
	}
}
