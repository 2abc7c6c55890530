package storage

import (
	"errors"
	"testing"
	"time"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func openClockedStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	s := openTestStore(t)
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.SetClock(clock.now)
	return s, clock
}

func savePageID(t *testing.T, s *Store, url string) string {
	t.Helper()
	p, err := s.SavePage(url, "", "")
	if err != nil {
		t.Fatalf("SavePage: %v", err)
	}
	return p.ID
}

func mustClaim(t *testing.T, s *Store) *SummaryJob {
	t.Helper()
	job, err := s.ClaimSummary()
	if err != nil {
		t.Fatalf("ClaimSummary: %v", err)
	}
	if job == nil {
		t.Fatal("ClaimSummary returned nil")
	}
	return job
}

func TestQueueSummary(t *testing.T) {
	s, clock := openClockedStore(t)
	pageID := savePageID(t, s, "https://example.com/a")

	job, created, err := s.QueueSummary(pageID)
	if err != nil {
		t.Fatalf("QueueSummary: %v", err)
	}
	if !created {
		t.Error("created = false for a fresh page")
	}
	if job.ID == "" || job.PageID != pageID {
		t.Errorf("job = %+v", job)
	}
	if job.Status != JobPending || job.Attempts != 0 || job.MaxAttempts != DefaultSummaryAttempts {
		t.Errorf("status=%q attempts=%d max=%d", job.Status, job.Attempts, job.MaxAttempts)
	}
	if !job.RunAfter.Equal(clock.t) {
		t.Errorf("RunAfter = %v, want %v", job.RunAfter, clock.t)
	}
}

func TestQueueSummary_OnePendingJobPerPage(t *testing.T) {
	s, _ := openClockedStore(t)
	pageID := savePageID(t, s, "https://example.com/a")

	first, _, err := s.QueueSummary(pageID)
	if err != nil {
		t.Fatalf("QueueSummary: %v", err)
	}
	again, created, err := s.QueueSummary(pageID)
	if err != nil {
		t.Fatalf("QueueSummary again: %v", err)
	}
	if created || again.ID != first.ID {
		t.Errorf("second queue created=%v id=%q, want existing %q", created, again.ID, first.ID)
	}

	// Once the job is running a revisit gets its own job.
	mustClaim(t, s)
	next, created, err := s.QueueSummary(pageID)
	if err != nil {
		t.Fatalf("QueueSummary after claim: %v", err)
	}
	if !created || next.ID == first.ID {
		t.Errorf("after claim created=%v id=%q", created, next.ID)
	}
}

func TestQueueSummary_UnknownPage(t *testing.T) {
	s, _ := openClockedStore(t)
	if _, _, err := s.QueueSummary("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestClaimSummary_Empty(t *testing.T) {
	s, _ := openClockedStore(t)
	job, err := s.ClaimSummary()
	if err != nil {
		t.Fatalf("ClaimSummary: %v", err)
	}
	if job != nil {
		t.Errorf("got %+v from an empty queue", job)
	}
}

func TestClaimSummary_OldestFirstAndOnce(t *testing.T) {
	s, clock := openClockedStore(t)
	older, _, _ := s.QueueSummary(savePageID(t, s, "https://example.com/1"))
	clock.advance(time.Second)
	newer, _, _ := s.QueueSummary(savePageID(t, s, "https://example.com/2"))

	if got := mustClaim(t, s); got.ID != older.ID || got.Status != JobRunning {
		t.Errorf("first claim = %s/%s, want %s/running", got.ID, got.Status, older.ID)
	}
	if got := mustClaim(t, s); got.ID != newer.ID {
		t.Errorf("second claim = %s, want %s", got.ID, newer.ID)
	}
	if job, _ := s.ClaimSummary(); job != nil {
		t.Errorf("running jobs were claimed again: %+v", job)
	}
}

func TestRetrySummary_BacksOff(t *testing.T) {
	s, clock := openClockedStore(t)
	queued, _, _ := s.QueueSummary(savePageID(t, s, "https://example.com/r"))
	mustClaim(t, s)

	exhausted, err := s.RetrySummary(queued.ID, "fetch timed out")
	if err != nil {
		t.Fatalf("RetrySummary: %v", err)
	}
	if exhausted {
		t.Error("exhausted after the first attempt")
	}
	job, err := s.GetSummaryJob(queued.ID)
	if err != nil {
		t.Fatalf("GetSummaryJob: %v", err)
	}
	if job.Status != JobPending || job.Attempts != 1 || job.LastError != "fetch timed out" {
		t.Errorf("job = %+v", job)
	}
	if want := clock.t.Add(2 * time.Second); !job.RunAfter.Equal(want) {
		t.Errorf("RunAfter = %v, want %v", job.RunAfter, want)
	}

	clock.advance(time.Second)
	if job, _ := s.ClaimSummary(); job != nil {
		t.Fatal("job claimed before its backoff elapsed")
	}
	clock.advance(time.Second)
	if got := mustClaim(t, s); got.ID != queued.ID || got.Attempts != 1 {
		t.Errorf("claimed %s with %d attempts", got.ID, got.Attempts)
	}
}

func TestRetrySummary_Exhausts(t *testing.T) {
	s, clock := openClockedStore(t)
	queued, _, _ := s.QueueSummary(savePageID(t, s, "https://example.com/x"))

	for attempt := 1; attempt <= DefaultSummaryAttempts; attempt++ {
		mustClaim(t, s)
		exhausted, err := s.RetrySummary(queued.ID, "boom")
		if err != nil {
			t.Fatalf("RetrySummary %d: %v", attempt, err)
		}
		if want := attempt == DefaultSummaryAttempts; exhausted != want {
			t.Errorf("attempt %d: exhausted = %v, want %v", attempt, exhausted, want)
		}
		clock.advance(time.Minute)
	}

	job, _ := s.GetSummaryJob(queued.ID)
	if job.Status != JobFailed || job.Attempts != DefaultSummaryAttempts {
		t.Errorf("status=%q attempts=%d", job.Status, job.Attempts)
	}
	if job, _ := s.ClaimSummary(); job != nil {
		t.Error("failed job was claimed")
	}
}

func TestRetrySummary_NewerJobTakesOver(t *testing.T) {
	s, _ := openClockedStore(t)
	pageID := savePageID(t, s, "https://example.com/n")
	stale, _, _ := s.QueueSummary(pageID)
	mustClaim(t, s)
	fresh, _, err := s.QueueSummary(pageID)
	if err != nil {
		t.Fatalf("QueueSummary: %v", err)
	}

	exhausted, err := s.RetrySummary(stale.ID, "boom")
	if err != nil {
		t.Fatalf("RetrySummary: %v", err)
	}
	if exhausted {
		t.Error("overtaken job reported exhausted")
	}
	if job, _ := s.GetSummaryJob(stale.ID); job.Status != JobFailed {
		t.Errorf("stale status = %q, want failed", job.Status)
	}
	if job, _ := s.GetSummaryJob(fresh.ID); job.Status != JobPending {
		t.Errorf("fresh status = %q, want pending", job.Status)
	}
}

func TestFinishSummary(t *testing.T) {
	s, _ := openClockedStore(t)
	queued, _, _ := s.QueueSummary(savePageID(t, s, "https://example.com/f"))
	mustClaim(t, s)

	if err := s.FinishSummary(queued.ID); err != nil {
		t.Fatalf("FinishSummary: %v", err)
	}
	if job, _ := s.GetSummaryJob(queued.ID); job.Status != JobCompleted {
		t.Errorf("status = %q, want completed", job.Status)
	}
}

func TestDeletedPageDropsJobs(t *testing.T) {
	s, _ := openClockedStore(t)
	pageID := savePageID(t, s, "https://example.com/d")
	queued, _, _ := s.QueueSummary(pageID)
	mustClaim(t, s)

	if err := s.DeletePage(pageID); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}
	if _, err := s.GetSummaryJob(queued.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSummaryJob err = %v, want ErrNotFound", err)
	}
	if err := s.FinishSummary(queued.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishSummary err = %v, want ErrNotFound", err)
	}
	if _, err := s.RetrySummary(queued.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RetrySummary err = %v, want ErrNotFound", err)
	}
}
