package syncd

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/theonlywayisdigital/donedex-sub002/internal/cache"
	"github.com/theonlywayisdigital/donedex-sub002/internal/inspection"
	"github.com/theonlywayisdigital/donedex-sub002/internal/remote"
)

// fakeReports records upserts and can fail a configurable number of
// times per item before succeeding.
type fakeReports struct {
	mu        sync.Mutex
	upserts   []remote.UpsertParams
	failTimes map[string]int
}

func newFakeReports() *fakeReports {
	return &fakeReports{failTimes: make(map[string]int)}
}

func (f *fakeReports) UpsertResponse(ctx context.Context, params remote.UpsertParams) (*inspection.RemoteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTimes[params.TemplateItemID] > 0 {
		f.failTimes[params.TemplateItemID]--
		return nil, errors.New("upstream unavailable")
	}
	f.upserts = append(f.upserts, params)
	return &inspection.RemoteResponse{
		ReportID:       params.ReportID,
		TemplateItemID: params.TemplateItemID,
		ResponseValue:  params.ResponseValue,
		UpdatedAt:      time.Now(),
	}, nil
}

func (f *fakeReports) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func (f *fakeReports) CreateReport(ctx context.Context, orgID, recordID, templateID, userID string) (*inspection.Report, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeReports) FetchReportByID(ctx context.Context, reportID string) (*inspection.Report, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeReports) FetchReportResponses(ctx context.Context, reportID string) ([]*inspection.RemoteResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeReports) SubmitReport(ctx context.Context, reportID string, submittedAt time.Time) error {
	return errors.New("not implemented")
}

func (f *fakeReports) ListReports(ctx context.Context, orgID, cursor string, limit int) (*remote.ReportPage, error) {
	return nil, errors.New("not implemented")
}

func setupTestStore(t *testing.T) *cache.Store {
	t.Helper()

	store, err := cache.Open(filepath.Join(t.TempDir(), "drafts.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func enqueue(t *testing.T, store *cache.Store, reportID, itemID, value string) {
	t.Helper()

	err := store.Enqueue(cache.MutationResponse, cache.ResponsePayload{
		ReportID:       reportID,
		TemplateItemID: itemID,
		ItemType:       "text",
		ResponseValue:  value,
	})
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
}

func testConfig() *Config {
	config := DefaultConfig()
	config.MaxRetryElapsed = time.Second
	config.Logger = log.New(io.Discard, "", 0)
	return config
}

func TestNewValidation(t *testing.T) {
	store := setupTestStore(t)
	reports := newFakeReports()

	tests := []struct {
		name    string
		store   *cache.Store
		reports remote.ReportService
		wantErr bool
	}{
		{"valid", store, reports, false},
		{"nil store", nil, reports, true},
		{"nil reports", store, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.store, tt.reports, remote.Static(true), testConfig())
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if err := d.Stop(); err != nil {
				t.Errorf("Stop failed: %v", err)
			}
		})
	}
}

func TestDrainOnceReplaysInOrder(t *testing.T) {
	store := setupTestStore(t)
	reports := newFakeReports()

	enqueue(t, store, "report-1", "item-a", "v1")
	enqueue(t, store, "report-1", "item-b", "v2")
	enqueue(t, store, "report-2", "item-a", "v3")

	d, err := New(store, reports, remote.Static(true), testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Stop()

	n, err := d.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 drained, got %d", n)
	}

	if len(reports.upserts) != 3 {
		t.Fatalf("Expected 3 upserts, got %d", len(reports.upserts))
	}
	if reports.upserts[0].ResponseValue != "v1" || reports.upserts[2].ResponseValue != "v3" {
		t.Errorf("Upserts out of order: %+v", reports.upserts)
	}

	count, err := store.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty queue, got %d", count)
	}
}

func TestDrainOnceSkipsWhenOffline(t *testing.T) {
	store := setupTestStore(t)
	reports := newFakeReports()
	enqueue(t, store, "report-1", "item-a", "v1")

	d, err := New(store, reports, remote.Static(false), testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Stop()

	n, err := d.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no drain while offline, got %d", n)
	}

	count, _ := store.PendingCount()
	if count != 1 {
		t.Errorf("Expected mutation preserved, got %d pending", count)
	}
}

func TestDrainRetriesTransientFailure(t *testing.T) {
	store := setupTestStore(t)
	reports := newFakeReports()
	reports.failTimes["item-a"] = 2

	enqueue(t, store, "report-1", "item-a", "v1")

	d, err := New(store, reports, remote.Static(true), testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Stop()

	n, err := d.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("Expected retries to absorb transient failures, got: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 drained, got %d", n)
	}
}

func TestDrainStopsAtPersistentFailure(t *testing.T) {
	store := setupTestStore(t)
	reports := newFakeReports()
	reports.failTimes["item-b"] = 1000

	enqueue(t, store, "report-1", "item-a", "v1")
	enqueue(t, store, "report-1", "item-b", "v2")
	enqueue(t, store, "report-1", "item-c", "v3")

	d, err := New(store, reports, remote.Static(true), testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Stop()

	n, err := d.DrainOnce(context.Background())
	if err == nil {
		t.Fatal("Expected drain to report the stuck mutation")
	}
	if n != 1 {
		t.Errorf("Expected 1 drained before the failure, got %d", n)
	}

	// item-b and item-c must both still be queued: later mutations
	// never overtake an earlier failure.
	pending, err := store.Pending()
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending, got %d", len(pending))
	}
	if pending[0].Payload.TemplateItemID != "item-b" {
		t.Errorf("Expected item-b first in queue, got %s", pending[0].Payload.TemplateItemID)
	}
}

func TestDrainIsIdempotentAcrossReplays(t *testing.T) {
	store := setupTestStore(t)
	reports := newFakeReports()

	enqueue(t, store, "report-1", "item-a", "v1")

	d, err := New(store, reports, remote.Static(true), testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Stop()

	if _, err := d.DrainOnce(context.Background()); err != nil {
		t.Fatalf("First drain failed: %v", err)
	}

	// Simulate a crash between upsert and queue removal: the same
	// mutation replays and must converge to one identical row.
	enqueue(t, store, "report-1", "item-a", "v1")
	if _, err := d.DrainOnce(context.Background()); err != nil {
		t.Fatalf("Second drain failed: %v", err)
	}

	if reports.upsertCount() != 2 {
		t.Fatalf("Expected both replays upserted, got %d", reports.upsertCount())
	}
	first, second := reports.upserts[0], reports.upserts[1]
	if first.ReportID != second.ReportID || first.TemplateItemID != second.TemplateItemID || first.ResponseValue != second.ResponseValue {
		t.Error("Replayed upsert diverged from the original")
	}
}

func TestStartDrainsOnCacheWrite(t *testing.T) {
	store := setupTestStore(t)
	reports := newFakeReports()

	config := testConfig()
	config.DrainInterval = time.Hour // only file events should trigger
	config.DebounceInterval = 10 * time.Millisecond

	d, err := New(store, reports, remote.Static(true), config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Give the watcher time to register, then write to the cache.
	time.Sleep(100 * time.Millisecond)
	enqueue(t, store, "report-1", "item-a", "v1")

	deadline := time.After(5 * time.Second)
	for reports.upsertCount() == 0 {
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("Timed out waiting for event-triggered drain")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start returned error: %v", err)
	}
}
