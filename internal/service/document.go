package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/Strob0t/Tasktrack/internal/adapter/otel"
	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/evidence"
	"github.com/Strob0t/Tasktrack/internal/domain/task"
	"github.com/Strob0t/Tasktrack/internal/port/database"
	"github.com/Strob0t/Tasktrack/internal/port/filestore"
	"github.com/Strob0t/Tasktrack/internal/port/messagequeue"
)

// Upload is a document submitted as completion evidence.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64 // as declared by the client; the stored size is measured
	Body        io.Reader
}

// DocumentService stores evidence documents and tracks their summaries.
type DocumentService struct {
	store    database.Store
	files    filestore.Store
	queue    messagequeue.Queue
	metrics  *otel.Metrics
	maxBytes int64
	now      func() time.Time
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(store database.Store, files filestore.Store, queue messagequeue.Queue, metrics *otel.Metrics, maxBytes int64) *DocumentService {
	if maxBytes <= 0 {
		maxBytes = evidence.DefaultMaxBytes
	}
	return &DocumentService{
		store:    store,
		files:    files,
		queue:    queue,
		metrics:  metrics,
		maxBytes: maxBytes,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Attach validates and stores an upload for t. Content is addressed by its
// SHA-256, so re-uploading the same file reuses the stored object. The
// returned evidence is pending summarization; t is not modified.
func (s *DocumentService) Attach(ctx context.Context, t *task.Task, up *Upload) (*evidence.Evidence, error) {
	if err := evidence.ValidateUpload(up.Filename, up.Size, s.maxBytes); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(up.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: upload exceeds the %d byte limit", domain.ErrPayloadTooLarge, s.maxBytes)
	}

	sum := sha256.Sum256(data)
	contentID := hex.EncodeToString(sum[:])
	name := filepath.Base(up.Filename)
	ext := evidence.Extension(name)

	ref, err := s.files.Put(ctx, path.Join(t.OrgID, contentID+ext), bytes.NewReader(data), up.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	s.metrics.RecordUpload(ctx, ext, int64(len(data)))

	return &evidence.Evidence{
		Filename:     name,
		ContentID:    contentID,
		StorageRef:   ref,
		ContentType:  up.ContentType,
		Size:         int64(len(data)),
		SummaryState: evidence.SummaryPending,
		AttachedAt:   s.now(),
	}, nil
}

// RequestSummary queues summarization of t's document. It never blocks the
// caller on the summary itself. If the request cannot be queued the
// evidence is marked failed so clients stop polling.
func (s *DocumentService) RequestSummary(ctx context.Context, t *task.Task) {
	doc := t.Document
	if doc == nil || doc.SummaryState != evidence.SummaryPending {
		return
	}
	payload := messagequeue.SummarizeRequestPayload{
		OrgID:       t.OrgID,
		TaskID:      t.ID,
		TaskTitle:   t.Title,
		ContentID:   doc.ContentID,
		Filename:    doc.Filename,
		StorageRef:  doc.StorageRef,
		ContentType: doc.ContentType,
	}
	data, err := json.Marshal(payload)
	if err == nil {
		err = s.queue.Publish(ctx, messagequeue.SubjectDocumentSummarize, data)
	}
	if err == nil {
		return
	}

	slog.ErrorContext(ctx, "summary request not queued", "task_id", t.ID, "error", err)
	res := &evidence.SummaryResult{
		OrgID:     t.OrgID,
		TaskID:    t.ID,
		ContentID: doc.ContentID,
		State:     evidence.SummaryFailed,
		Error:     "summary request could not be queued",
		At:        s.now(),
	}
	if err := s.RecordSummary(ctx, res); err != nil {
		slog.ErrorContext(ctx, "mark summary failed", "task_id", t.ID, "error", err)
	}
}

// RecordSummary writes a summarization result back onto the task's
// evidence. Status and version are left alone. A result for a document
// that has since been replaced is discarded.
func (s *DocumentService) RecordSummary(ctx context.Context, res *evidence.SummaryResult) error {
	if res.State != evidence.SummaryReady && res.State != evidence.SummaryFailed {
		return fmt.Errorf("%w: summary state %q", domain.ErrValidation, res.State)
	}
	if res.State == evidence.SummaryReady && res.Summary == nil {
		return fmt.Errorf("%w: ready result without summary", domain.ErrValidation)
	}
	err := s.store.UpdateTaskSummary(ctx, res)
	if errors.Is(err, domain.ErrNotFound) {
		slog.InfoContext(ctx, "stale summary discarded", "task_id", res.TaskID, "content_id", res.ContentID)
		return nil
	}
	return err
}

// HandleSummarized is the queue handler for documents.summarized.
func (s *DocumentService) HandleSummarized(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.SummaryResultPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode summary result: %w", err)
	}
	res := &evidence.SummaryResult{
		OrgID:     p.OrgID,
		TaskID:    p.TaskID,
		ContentID: p.ContentID,
		State:     evidence.SummaryState(p.State),
		Error:     p.Error,
		At:        p.At,
	}
	if p.Summary != nil {
		res.Summary = &evidence.Summary{
			Summary:                    p.Summary.Summary,
			KeyPoints:                  p.Summary.KeyPoints,
			DocumentType:               p.Summary.DocumentType,
			QualityAssessment:          p.Summary.QualityAssessment,
			VerificationRecommendation: p.Summary.VerificationRecommendation,
		}
	}
	if res.At.IsZero() {
		res.At = s.now()
	}
	return s.RecordSummary(ctx, res)
}

// Document returns the evidence attached to a task.
func (s *DocumentService) Document(t *task.Task) (*evidence.Evidence, error) {
	if t.Document == nil {
		return nil, fmt.Errorf("task %s has no document: %w", t.ID, domain.ErrNotFound)
	}
	return t.Document, nil
}
