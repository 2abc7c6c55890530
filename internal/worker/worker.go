// Package worker summarizes browsing-history pages in the background.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/aether/internal/metrics"
	"github.com/kalambet/aether/internal/orchestrator"
	"github.com/kalambet/aether/internal/storage"
)

const jobType = "summarize_page"

// JobStore is the summary queue plus the page records it works on.
type JobStore interface {
	QueueSummary(pageID string) (storage.SummaryJob, bool, error)
	ClaimSummary() (*storage.SummaryJob, error)
	FinishSummary(id string) error
	RetrySummary(id, errMsg string) (bool, error)
	GetPage(id string) (storage.Page, error)
	UpdatePageSummary(id, title, content, summary string) error
	MarkPageFailed(id, errMsg string) error
}

// PageSummarizer fetches and summarizes a page.
type PageSummarizer interface {
	SummarizePage(ctx context.Context, url string, length orchestrator.Length) (orchestrator.PageSummary, error)
}

// Worker drains the page summary queue.
type Worker struct {
	store      JobStore
	summarizer PageSummarizer
	poll       time.Duration
	logger     *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, summarizer PageSummarizer, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:      store,
		summarizer: summarizer,
		poll:       pollInterval,
		logger:     logger.With("component", "worker"),
	}
}

// Enqueue schedules a summary of page and returns the job id. A page that
// is already waiting keeps its existing job.
func Enqueue(store JobStore, page storage.Page) (string, error) {
	job, _, err := store.QueueSummary(page.ID)
	if err != nil {
		return "", fmt.Errorf("queueing summary for %s: %w", page.URL, err)
	}
	return job.ID, nil
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", "poll", w.poll)
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job. It reports whether a job was
// claimed, whatever its outcome.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimSummary()
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	log := w.logger.With("job_id", job.ID, "page_id", job.PageID)

	err = w.summarize(ctx, job.PageID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// The page was deleted while queued.
		metrics.JobsProcessed.WithLabelValues(jobType, "dropped").Inc()
		log.Info("page gone, dropping job")
		if err := w.store.FinishSummary(job.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return true, fmt.Errorf("completing job %s: %w", job.ID, err)
		}
		return true, nil

	case err != nil:
		metrics.JobsProcessed.WithLabelValues(jobType, "failed").Inc()
		log.Warn("job failed", "attempt", job.Attempts+1, "error", err)
		exhausted, retryErr := w.store.RetrySummary(job.ID, err.Error())
		if retryErr != nil {
			if !errors.Is(retryErr, storage.ErrNotFound) {
				log.Error("failed to record job failure", "error", retryErr)
			}
			return true, nil
		}
		if exhausted {
			if markErr := w.store.MarkPageFailed(job.PageID, err.Error()); markErr != nil && !errors.Is(markErr, storage.ErrNotFound) {
				log.Error("marking page failed", "error", markErr)
			}
		}
		return true, nil
	}

	if err := w.store.FinishSummary(job.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	metrics.JobsProcessed.WithLabelValues(jobType, "completed").Inc()
	return true, nil
}

// summarize fetches the page's URL at its requested length and stores the
// result. storage.ErrNotFound means the page no longer exists.
func (w *Worker) summarize(ctx context.Context, pageID string) error {
	page, err := w.store.GetPage(pageID)
	if err != nil {
		return err
	}

	length, err := orchestrator.ParseLength(page.SummaryLength)
	if err != nil {
		return err
	}

	sum, err := w.summarizer.SummarizePage(ctx, page.URL, length)
	if err != nil {
		return fmt.Errorf("summarizing %s: %w", page.URL, err)
	}

	if err := w.store.UpdatePageSummary(page.ID, sum.Title, sum.Text, sum.Summary); err != nil {
		return fmt.Errorf("storing summary for page %s: %w", page.ID, err)
	}
	w.logger.Info("page summarized", "page_id", page.ID, "url", page.URL, "cached", sum.Cached)
	return nil
}
