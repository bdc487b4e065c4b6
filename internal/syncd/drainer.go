// Package syncd provides the background drain daemon that replays
// queued response mutations to the remote system.
//
// The daemon:
// 1. Watches the cache directory for database writes
// 2. Drains the mutation queue in FIFO order when online
// 3. Periodically retries on a timer regardless of file events
// 4. Handles graceful shutdown
package syncd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/theonlywayisdigital/donedex-sub002/internal/cache"
	"github.com/theonlywayisdigital/donedex-sub002/internal/remote"
)

// Config holds configuration for the drain daemon.
type Config struct {
	// DrainInterval is how often to attempt a drain even without a
	// file event. This catches connectivity coming back.
	DrainInterval time.Duration

	// DebounceInterval is how long to wait after a file event before
	// draining. This batches rapid writes together.
	DebounceInterval time.Duration

	// MaxRetryElapsed bounds the per-mutation retry window before the
	// drain cycle gives up and waits for the next trigger.
	MaxRetryElapsed time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DrainInterval:    30 * time.Second,
		DebounceInterval: 500 * time.Millisecond,
		MaxRetryElapsed:  15 * time.Second,
		Logger:           log.New(os.Stderr, "[syncd] ", log.LstdFlags),
	}
}

// Drainer watches the mutation queue and replays it to the remote
// report service. Replay is idempotent: the remote upsert keeps one
// row per (report, item) pair, so draining the same mutation twice
// converges to the same state.
type Drainer struct {
	store        *cache.Store
	reports      remote.ReportService
	connectivity remote.Connectivity
	config       *Config

	watcher *fsnotify.Watcher
	wake    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a drain daemon over the given store and report service.
// Use Start() to begin watching and draining.
func New(store *cache.Store, reports remote.ReportService, connectivity remote.Connectivity, config *Config) (*Drainer, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if reports == nil {
		return nil, fmt.Errorf("report service cannot be nil")
	}
	if connectivity == nil {
		return nil, fmt.Errorf("connectivity cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Drainer{
		store:        store,
		reports:      reports,
		connectivity: connectivity,
		config:       config,
		watcher:      watcher,
		wake:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Perform an initial drain
// 2. Watch the cache directory for database writes
// 3. Drain on writes (debounced) and on a periodic timer
//
// This blocks until ctx is cancelled.
func (d *Drainer) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting drain daemon")

	// Initial drain picks up anything queued while we were down.
	if n, err := d.DrainOnce(d.ctx); err != nil {
		d.config.Logger.Printf("Warning: initial drain stopped: %v", err)
	} else if n > 0 {
		d.config.Logger.Printf("Initial drain replayed %d mutations", n)
	}

	// Watch the directory, not the file: SQLite WAL writes touch
	// sibling files and the database may be recreated.
	cacheDir := filepath.Dir(d.store.Path())
	if err := d.watcher.Add(cacheDir); err != nil {
		return fmt.Errorf("failed to watch cache directory %s: %w", cacheDir, err)
	}
	d.config.Logger.Printf("Watching: %s", cacheDir)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.drainLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Drainer) Stop() error {
	d.config.Logger.Println("Stopping drain daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Drain daemon stopped")
	return nil
}

// watchFileEvents monitors cache writes and schedules a wake.
func (d *Drainer) watchFileEvents() {
	defer d.wg.Done()

	base := filepath.Base(d.store.Path())

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// Only wake on the database and its WAL sidecars.
			name := filepath.Base(event.Name)
			if name != base && name != base+"-wal" && name != base+"-journal" {
				continue
			}

			select {
			case d.wake <- struct{}{}:
			default:
			}

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// drainLoop drains on wakes (debounced) and on the periodic timer.
func (d *Drainer) drainLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-d.wake:
			// Debounce: let a burst of writes settle before reading.
			select {
			case <-time.After(d.config.DebounceInterval):
			case <-d.ctx.Done():
				return
			}
			d.drainAndLog()

		case <-ticker.C:
			d.drainAndLog()
		}
	}
}

func (d *Drainer) drainAndLog() {
	n, err := d.DrainOnce(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Drain stopped after %d mutations: %v", n, err)
	} else if n > 0 {
		d.config.Logger.Printf("Drained %d mutations", n)
	}
}

// DrainOnce replays the full pending queue in FIFO order and returns
// the number of mutations successfully replayed.
//
// Each mutation is retried with exponential backoff; once a mutation
// exhausts its retries the drain stops so later mutations never
// overtake an earlier one for the same item. The failed mutation stays
// queued for the next cycle.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	if !d.connectivity.IsOnline() {
		return 0, nil
	}

	pending, err := d.store.PendingContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read mutation queue: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	drained := 0
	for _, m := range pending {
		if err := d.replay(ctx, m); err != nil {
			return drained, fmt.Errorf("failed to replay mutation %d (report %s, item %s): %w",
				m.Seq, m.Payload.ReportID, m.Payload.TemplateItemID, err)
		}

		if err := d.store.RemoveContext(ctx, m.Seq); err != nil {
			// The upsert landed; a stuck queue row only means a
			// harmless replay next cycle.
			d.config.Logger.Printf("Warning: failed to remove mutation %d: %v", m.Seq, err)
		}
		drained++
	}

	return drained, nil
}

// replay pushes one queued mutation to the remote service with
// exponential backoff.
func (d *Drainer) replay(ctx context.Context, m *cache.QueuedMutation) error {
	params := remote.UpsertParams{
		ReportID:       m.Payload.ReportID,
		TemplateItemID: m.Payload.TemplateItemID,
		ItemLabel:      m.Payload.ItemLabel,
		ItemType:       m.Payload.ItemType,
		ResponseValue:  m.Payload.ResponseValue,
		Severity:       m.Payload.Severity,
		Notes:          m.Payload.Notes,
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = d.config.MaxRetryElapsed

	return backoff.Retry(func() error {
		_, err := d.reports.UpsertResponse(ctx, params)
		return err
	}, backoff.WithContext(policy, ctx))
}

// PendingCount reports the current queue depth.
func (d *Drainer) PendingCount(ctx context.Context) (int, error) {
	return d.store.PendingCountContext(ctx)
}
