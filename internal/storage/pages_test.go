package storage

import (
	"errors"
	"testing"
)

func TestSaveAndGetPage(t *testing.T) {
	s := openTestStore(t)

	p, err := s.SavePage("https://go.dev/blog", "Go Blog", "")
	if err != nil {
		t.Fatalf("SavePage: %v", err)
	}
	if p.Status != PageStatusPending {
		t.Errorf("Status = %q, want %q", p.Status, PageStatusPending)
	}
	if p.SummaryLength != "medium" {
		t.Errorf("SummaryLength = %q, want medium", p.SummaryLength)
	}

	got, err := s.GetPage(p.ID)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if got.URL != "https://go.dev/blog" || got.Title != "Go Blog" {
		t.Errorf("page = %+v", got)
	}
}

func TestSavePageRevisitKeepsID(t *testing.T) {
	s := openTestStore(t)

	first, _ := s.SavePage("https://example.com", "Example", "short")
	if err := s.UpdatePageSummary(first.ID, "", "text", "summary"); err != nil {
		t.Fatalf("UpdatePageSummary: %v", err)
	}

	second, err := s.SavePage("https://example.com", "", "long")
	if err != nil {
		t.Fatalf("SavePage: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("revisit id = %q, want %q", second.ID, first.ID)
	}
	if second.Title != "Example" {
		t.Errorf("empty title should not overwrite: %q", second.Title)
	}
	if second.Status != PageStatusPending || second.SummaryLength != "long" {
		t.Errorf("page = %+v", second)
	}
}

func TestUpdatePageSummary(t *testing.T) {
	s := openTestStore(t)

	p, _ := s.SavePage("https://example.com/a", "", "")
	if err := s.UpdatePageSummary(p.ID, "Fetched Title", "full text", "short summary"); err != nil {
		t.Fatalf("UpdatePageSummary: %v", err)
	}

	got, _ := s.GetPage(p.ID)
	if got.Status != PageStatusSummarized {
		t.Errorf("Status = %q", got.Status)
	}
	if got.Summary != "short summary" || got.Content != "full text" || got.Title != "Fetched Title" {
		t.Errorf("page = %+v", got)
	}

	if err := s.UpdatePageSummary("missing", "", "", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMarkPageFailed(t *testing.T) {
	s := openTestStore(t)

	p, _ := s.SavePage("https://example.com/b", "", "")
	if err := s.MarkPageFailed(p.ID, "timeout"); err != nil {
		t.Fatalf("MarkPageFailed: %v", err)
	}
	got, _ := s.GetPage(p.ID)
	if got.Status != PageStatusFailed || got.LastError != "timeout" {
		t.Errorf("page = %+v", got)
	}
}

func TestListAndDeletePages(t *testing.T) {
	s := openTestStore(t)

	for _, u := range []string{"https://a", "https://b", "https://c"} {
		if _, err := s.SavePage(u, "", ""); err != nil {
			t.Fatalf("SavePage: %v", err)
		}
	}

	list, err := s.ListPages(2, 0)
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].URL != "https://c" {
		t.Errorf("most recent = %q, want https://c", list[0].URL)
	}

	if err := s.DeletePage(list[0].ID); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}
	if _, err := s.GetPage(list[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPage after delete err = %v, want ErrNotFound", err)
	}
}
