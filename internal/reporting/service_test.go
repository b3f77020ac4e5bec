package reporting

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cart-dialer/internal/calllog"
	"cart-dialer/internal/calls"
	"cart-dialer/internal/contacts"
)

func sampleRows() []calllog.LoggedRow {
	return []calllog.LoggedRow{
		{Timestamp: "2026-10-18T09:00:00Z", Phone: "+1", RecordKey: "a", Status: calls.OutcomeInitiated, Language: "en", Reason: "price", TimeOfDay: "Morning", DayOfWeek: "Sunday", Attempts: 1},
		{Timestamp: "2026-10-18T10:00:00Z", Phone: "+1", RecordKey: "a", Status: calls.OutcomeFailed, Error: "quota exceeded", Language: "en", TimeOfDay: "Morning", DayOfWeek: "Sunday", Attempts: 3},
		{Timestamp: "2026-10-18T15:00:00Z", Phone: "+2", RecordKey: "b", Status: calls.OutcomeFailed, Error: "quota exceeded", Language: "hi", TimeOfDay: "Afternoon", DayOfWeek: "Sunday", Attempts: 1},
		{Timestamp: "2026-10-18T16:00:00Z", Phone: "", RecordKey: "c", Status: calls.OutcomeSkipped, Error: "phone missing", TimeOfDay: "Afternoon", DayOfWeek: "Sunday"},
	}
}

func TestSummary_Counts(t *testing.T) {
	repo := NewMemoryRepo()
	repo.Rows["log.csv"] = sampleRows()
	svc := NewService(repo)

	out, err := svc.Summary(context.Background(), SummaryRequest{LogPath: "log.csv"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalRows != 4 || out.Initiated != 1 || out.Failed != 2 || out.Skipped != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.UniquePhones != 2 || out.UniqueRecords != 3 || out.Retried != 1 {
		t.Fatalf("unexpected uniques: %+v", out)
	}
	if out.ByTimeOfDay["Morning"] != 2 || out.ByLanguage["unknown"] != 1 {
		t.Fatalf("unexpected buckets: %+v", out)
	}
	if len(out.TopErrors) != 2 || out.TopErrors[0].Error != "quota exceeded" || out.TopErrors[0].Count != 2 {
		t.Fatalf("unexpected top errors: %+v", out.TopErrors)
	}
	if out.InitiationRate < 0.33 || out.InitiationRate > 0.34 {
		t.Fatalf("expected rate 1/3, got %f", out.InitiationRate)
	}
	if out.FirstAt != "2026-10-18T09:00:00Z" || out.LastAt != "2026-10-18T16:00:00Z" {
		t.Fatalf("unexpected span: %s .. %s", out.FirstAt, out.LastAt)
	}
}

func TestSummary_Range(t *testing.T) {
	repo := NewMemoryRepo()
	repo.Rows["log.csv"] = sampleRows()
	svc := NewService(repo)

	from := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	out, err := svc.Summary(context.Background(), SummaryRequest{
		LogPath: "log.csv",
		Range:   TimeRange{From: from, To: from.Add(7 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalRows != 3 || out.Initiated != 0 {
		t.Fatalf("unexpected counts: %+v", out)
	}
}

func TestSummary_InvalidRequest(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if _, err := svc.Summary(context.Background(), SummaryRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	now := time.Now()
	_, err := svc.Summary(context.Background(), SummaryRequest{LogPath: "x", Range: TimeRange{From: now, To: now}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty range, got %v", err)
	}
}

func TestSummary_FileRepoReadsWrittenLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.csv")
	w, err := calllog.Open(path, calllog.SchemaBasic)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := w.EnsureHeader(); err != nil {
		t.Fatalf("header: %v", err)
	}
	at := time.Date(2026, 10, 18, 14, 5, 0, 0, time.UTC)
	rec := contacts.Normalize(contacts.ContactRecord{Name: "Asha", Phone: "+14155550100", CartItems: "Lamp", CartTotal: "25"}, "en")
	for _, out := range []calls.CallOutcome{
		calls.Initiated("call-1", at, at),
		calls.Failed("rate limited", true, at, at),
	} {
		if err := w.Append(calllog.NewEntry(rec, out, 0)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out, err := NewService(FileRepo{}).Summary(context.Background(), SummaryRequest{LogPath: path})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalRows != 2 || out.Initiated != 1 || out.Failed != 1 || out.UniquePhones != 1 || out.UniqueRecords != 1 {
		t.Fatalf("unexpected summary: %+v", out)
	}
}
