package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/Tasktrack/internal/adapter/otel"
	"github.com/Strob0t/Tasktrack/internal/domain/evidence"
	"github.com/Strob0t/Tasktrack/internal/port/filestore"
	"github.com/Strob0t/Tasktrack/internal/port/messagequeue"
	"github.com/Strob0t/Tasktrack/internal/port/summarizer"
	"github.com/Strob0t/Tasktrack/internal/workerpool"
)

// maxReadBytes bounds how much of a text document is loaded for summarizing.
const maxReadBytes = 1 << 20

// SummaryWorker consumes documents.summarize requests, produces a summary
// for each document and publishes the outcome on documents.summarized.
type SummaryWorker struct {
	queue     messagequeue.Queue
	files     filestore.Store
	sum       summarizer.Summarizer
	pool      *workerpool.Pool
	consumers int
	timeout   time.Duration
	metrics   *otel.Metrics
	now       func() time.Time
}

// NewSummaryWorker creates a worker running at most concurrency summaries
// at a time, each bounded by timeout.
func NewSummaryWorker(queue messagequeue.Queue, files filestore.Store, sum summarizer.Summarizer, concurrency int, timeout time.Duration, metrics *otel.Metrics) *SummaryWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SummaryWorker{
		queue:     queue,
		files:     files,
		sum:       sum,
		pool:      workerpool.New(concurrency),
		consumers: concurrency,
		timeout:   timeout,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start subscribes the worker's consumers. The returned function stops
// them and then waits for summaries already in progress to be published.
func (w *SummaryWorker) Start(ctx context.Context) (func(), error) {
	cancels := make([]func(), w.consumers)
	// Subscriptions outlive Start, so they take ctx rather than the group
	// context, which is cancelled as soon as Wait returns.
	var g errgroup.Group
	for i := range w.consumers {
		g.Go(func() error {
			cancel, err := w.queue.Subscribe(ctx, messagequeue.SubjectDocumentSummarize, w.Handle)
			if err != nil {
				return err
			}
			cancels[i] = cancel
			return nil
		})
	}
	var once sync.Once
	stop := func() {
		once.Do(func() {
			for _, c := range cancels {
				if c != nil {
					c()
				}
			}
			w.pool.Drain()
		})
	}
	if err := g.Wait(); err != nil {
		stop()
		return nil, fmt.Errorf("start summary worker: %w", err)
	}
	slog.Info("summary worker started", "consumers", w.consumers)
	return stop, nil
}

// Handle processes one summarize request. Only a failure to publish the
// result is returned, so the queue redelivers; every other failure becomes
// a failed result.
func (w *SummaryWorker) Handle(ctx context.Context, _ string, data []byte) error {
	var req messagequeue.SummarizeRequestPayload
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode summarize request: %w", err)
	}

	return w.pool.Run(ctx, func(ctx context.Context) error {
		res := w.summarize(ctx, &req)
		out, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("encode summary result: %w", err)
		}
		return w.queue.Publish(ctx, messagequeue.SubjectDocumentSummarized, out)
	})
}

func (w *SummaryWorker) summarize(ctx context.Context, req *messagequeue.SummarizeRequestPayload) *messagequeue.SummaryResultPayload {
	ctx, span := otel.StartSummarySpan(ctx, req.TaskID, req.ContentID)
	start := time.Now()

	res := &messagequeue.SummaryResultPayload{
		OrgID:     req.OrgID,
		TaskID:    req.TaskID,
		ContentID: req.ContentID,
	}
	summary, err := w.produce(ctx, req)
	if err != nil {
		slog.WarnContext(ctx, "summarization failed", "task_id", req.TaskID, "content_id", req.ContentID, "error", err)
		res.State = string(evidence.SummaryFailed)
		res.Error = err.Error()
	} else {
		res.State = string(evidence.SummaryReady)
		res.Summary = &messagequeue.SummaryPayload{
			Summary:                    summary.Summary,
			KeyPoints:                  summary.KeyPoints,
			DocumentType:               summary.DocumentType,
			QualityAssessment:          summary.QualityAssessment,
			VerificationRecommendation: summary.VerificationRecommendation,
		}
	}
	res.At = w.now()

	w.metrics.RecordSummary(ctx, res.State, time.Since(start))
	otel.EndSpan(span, err)
	return res
}

// produce returns the summary for a document. Formats the summarizer
// cannot read get a fallback summary naming the file.
func (w *SummaryWorker) produce(ctx context.Context, req *messagequeue.SummarizeRequestPayload) (*evidence.Summary, error) {
	if !evidence.IsText(req.Filename) {
		s := evidence.FallbackSummary(req.Filename)
		return &s, nil
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	rc, err := w.files.Open(ctx, req.StorageRef)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer rc.Close()
	content, err := io.ReadAll(io.LimitReader(rc, maxReadBytes))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	s, err := w.sum.Summarize(ctx, summarizer.Request{
		TaskTitle: req.TaskTitle,
		Filename:  req.Filename,
		Content:   string(content),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.New("summarization timed out")
		}
		return nil, err
	}
	return s, nil
}
