package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/theonlywayisdigital/donedex-sub002/internal/cache"
	"github.com/theonlywayisdigital/donedex-sub002/internal/inspection"
	"github.com/theonlywayisdigital/donedex-sub002/internal/merge"
	"github.com/theonlywayisdigital/donedex-sub002/internal/remote"
)

// Controller states.
const (
	StateIdle       = "idle"
	StateLoading    = "loading"
	StateReady      = "ready"
	StateSaving     = "saving"
	StateSubmitting = "submitting"
	StateSubmitted  = "submitted"
)

// FSM events.
const (
	eventBeginLoad    = "begin_load"
	eventLoaded       = "loaded"
	eventLoadFailed   = "load_failed"
	eventBeginSave    = "begin_save"
	eventSaveDone     = "save_done"
	eventBeginSubmit  = "begin_submit"
	eventSubmitDone   = "submit_done"
	eventSubmitFailed = "submit_failed"
	eventReset        = "reset"
)

var (
	// ErrNoSession indicates no session has been started or loaded.
	ErrNoSession = errors.New("no active session")

	// ErrSessionNotReady indicates the session is mid-operation.
	ErrSessionNotReady = errors.New("session is not ready")

	// ErrSaveInFlight indicates a Save is already running for this
	// session; callers are expected to serialize calls.
	ErrSaveInFlight = errors.New("a save is already in flight")

	// ErrSubmitted indicates the session's report is terminal.
	ErrSubmitted = errors.New("report is already submitted")

	// ErrUnknownItem indicates the item id is not in the template.
	ErrUnknownItem = errors.New("unknown template item")
)

// Config assembles the controller's collaborators.
type Config struct {
	Store        *cache.Store
	Templates    remote.TemplateService
	Reports      remote.ReportService
	Media        remote.MediaStore
	Connectivity remote.Connectivity

	// Strategy selects conflict resolution on load (default newest-wins).
	Strategy merge.Strategy

	// Logger for controller activity (default: stderr logger).
	Logger *log.Logger
}

// Controller drives one inspection edit session at a time.
//
// Methods are intended to be called from a single UI goroutine; edits
// are synchronous in-memory mutations, while Save/Submit/Load are
// blocking calls the caller awaits. Background draft persistence runs
// on its own goroutine and reports through PersistResults.
type Controller struct {
	store        *cache.Store
	templates    remote.TemplateService
	reports      remote.ReportService
	media        remote.MediaStore
	connectivity remote.Connectivity
	strategy     merge.Strategy
	logger       *log.Logger

	mu      sync.Mutex
	machine *fsm.FSM
	session *Session
	lastErr string

	// persistWG tracks in-flight background draft writes; persistCh
	// surfaces their outcomes for diagnostics.
	persistWG sync.WaitGroup
	persistCh chan error
}

// SubmitResult is the outcome of a submission. A non-empty Warning
// names the items whose media uploads failed; the submission itself
// still succeeded.
type SubmitResult struct {
	Warning string `json:"warning,omitempty"`
}

// NewController creates a session controller.
func NewController(config Config) (*Controller, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config.Templates == nil || config.Reports == nil {
		return nil, fmt.Errorf("template and report services are required")
	}
	if config.Connectivity == nil {
		return nil, fmt.Errorf("connectivity checker is required")
	}
	if !config.Strategy.IsValid() {
		config.Strategy = merge.StrategyNewestWins
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}

	c := &Controller{
		store:        config.Store,
		templates:    config.Templates,
		reports:      config.Reports,
		media:        config.Media,
		connectivity: config.Connectivity,
		strategy:     config.Strategy,
		logger:       config.Logger,
		persistCh:    make(chan error, 16),
	}
	c.machine = newMachine()

	return c, nil
}

// newMachine builds the per-session state machine.
func newMachine() *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventBeginLoad, Src: []string{StateIdle}, Dst: StateLoading},
			{Name: eventLoaded, Src: []string{StateLoading}, Dst: StateReady},
			{Name: eventLoadFailed, Src: []string{StateLoading}, Dst: StateIdle},
			{Name: eventBeginSave, Src: []string{StateReady}, Dst: StateSaving},
			{Name: eventSaveDone, Src: []string{StateSaving}, Dst: StateReady},
			{Name: eventBeginSubmit, Src: []string{StateReady}, Dst: StateSubmitting},
			{Name: eventSubmitDone, Src: []string{StateSubmitting}, Dst: StateSubmitted},
			{Name: eventSubmitFailed, Src: []string{StateSubmitting}, Dst: StateReady},
			{Name: eventReset, Src: []string{StateIdle, StateLoading, StateReady, StateSaving, StateSubmitting, StateSubmitted}, Dst: StateIdle},
		},
		fsm.Callbacks{},
	)
}

// State returns the controller's current state.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// Snapshot returns a read-only projection of the current session.
func (c *Controller) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshotOf(c.machine.Current(), c.lastErr, c.session)
}

// PersistResults exposes the outcomes of background draft writes.
// Failures are diagnostics, never edit-path errors: the channel is
// buffered and drops when nobody is reading.
func (c *Controller) PersistResults() <-chan error {
	return c.persistCh
}

// Flush blocks until all in-flight background draft writes finish.
func (c *Controller) Flush() {
	c.persistWG.Wait()
}

// setErr records a non-fatal error for the next snapshot.
func (c *Controller) setErr(err error) {
	if err != nil {
		c.lastErr = err.Error()
	} else {
		c.lastErr = ""
	}
}

// StartInspection creates a new remote report in draft status and
// initializes one empty response per template item. On any failure the
// controller returns to idle with no partial state retained.
func (c *Controller) StartInspection(ctx context.Context, orgID, recordID, templateID, userID string) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.machine.Event(ctx, eventBeginLoad); err != nil {
		return nil, fmt.Errorf("%w: cannot start from state %s", ErrSessionNotReady, c.machine.Current())
	}

	tmpl, err := c.templates.FetchTemplateWithSections(ctx, templateID)
	if err != nil {
		_ = c.machine.Event(ctx, eventLoadFailed)
		c.setErr(err)
		return nil, fmt.Errorf("failed to fetch template: %w", err)
	}

	report, err := c.reports.CreateReport(ctx, orgID, recordID, templateID, userID)
	if err != nil {
		_ = c.machine.Event(ctx, eventLoadFailed)
		c.setErr(err)
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	session := &Session{
		Report:    report,
		Template:  tmpl,
		Responses: make(map[string]*inspection.Response),
	}
	for _, item := range tmpl.Items() {
		session.Responses[item.ID] = &inspection.Response{TemplateItemID: item.ID}
	}

	c.session = session
	c.setErr(nil)
	_ = c.machine.Event(ctx, eventLoaded)

	c.logger.Printf("Started inspection: report=%s template=%s", report.ID, templateID)
	return snapshotOf(c.machine.Current(), c.lastErr, c.session), nil
}

// LoadInspection resumes an existing report: fetches the remote report
// and responses, loads the local draft if present, and merges the two.
//
// A remote fetch failure is a hard error; resuming a specific report
// against a stale local-only view is not allowed. The caller retries
// when back online.
func (c *Controller) LoadInspection(ctx context.Context, reportID string) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.machine.Event(ctx, eventBeginLoad); err != nil {
		return nil, fmt.Errorf("%w: cannot load from state %s", ErrSessionNotReady, c.machine.Current())
	}

	snap, err := c.loadLocked(ctx, reportID)
	if err != nil {
		_ = c.machine.Event(ctx, eventLoadFailed)
		c.setErr(err)
		return nil, err
	}

	c.setErr(nil)
	_ = c.machine.Event(ctx, eventLoaded)
	return snap, nil
}

// loadLocked performs the load under c.mu with the machine in loading.
func (c *Controller) loadLocked(ctx context.Context, reportID string) (*Snapshot, error) {
	report, err := c.reports.FetchReportByID(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch report %s: %w", reportID, err)
	}
	if report.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrSubmitted, reportID)
	}

	tmpl, err := c.templates.FetchTemplateWithSections(ctx, report.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch template %s: %w", report.TemplateID, err)
	}

	remoteResponses, err := c.reports.FetchReportResponses(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch responses for %s: %w", reportID, err)
	}

	// The draft cache is a best-effort aid: a read failure degrades to
	// a remote-only load instead of blocking the resume.
	draft, err := c.store.LoadDraftContext(ctx, reportID)
	if err != nil {
		c.logger.Printf("Warning: failed to load draft for %s: %v", reportID, err)
		draft = nil
	}

	var localResponses []*inspection.Response
	sectionIndex := 0
	if draft != nil {
		localResponses = draft.Responses
		sectionIndex = draft.CurrentSectionIndex
	}

	merged := merge.Resolve(tmpl.Items(), localResponses, remoteResponses, c.strategy)

	session := &Session{
		Report:    report,
		Template:  tmpl,
		Responses: make(map[string]*inspection.Response, len(merged)),
		Conflicts: make(map[string]merge.FieldWins),
	}
	conflicts := 0
	for _, m := range merged {
		session.Responses[m.Response.TemplateItemID] = m.Response
		if m.HadConflicts {
			session.Conflicts[m.Response.TemplateItemID] = m.Wins
			conflicts++
		}
	}

	if max := tmpl.SectionCount() - 1; sectionIndex > max {
		sectionIndex = max
	}
	if sectionIndex < 0 {
		sectionIndex = 0
	}
	session.CurrentSectionIndex = sectionIndex

	c.session = session
	c.logger.Printf("Loaded inspection: report=%s responses=%d conflicts=%d draft=%v",
		reportID, len(session.Responses), conflicts, draft != nil)

	return snapshotOf(StateReady, "", session), nil
}

// SetResponse records a value, severity, and notes for one item. The
// in-memory map is mutated synchronously, then the full draft is
// persisted in the background.
func (c *Controller) SetResponse(itemID string, value inspection.Value, severity inspection.Severity, notes string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.editableResponse(itemID)
	if err != nil {
		return err
	}

	r.Value = value
	r.Severity = severity
	r.Notes = notes
	r.FieldUpdatedAt = time.Now()

	c.persistDraftAsync()
	return nil
}

// AddPhoto appends a local media file path to an item's pending list.
func (c *Controller) AddPhoto(itemID, localPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.editableResponse(itemID)
	if err != nil {
		return err
	}

	for _, existing := range r.PendingMedia {
		if existing == localPath {
			return nil
		}
	}
	r.PendingMedia = append(r.PendingMedia, localPath)
	r.FieldUpdatedAt = time.Now()

	c.persistDraftAsync()
	return nil
}

// RemovePhoto removes a local media file path from an item's pending
// list. Removing an unknown path is a no-op.
func (c *Controller) RemovePhoto(itemID, localPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.editableResponse(itemID)
	if err != nil {
		return err
	}

	kept := r.PendingMedia[:0]
	for _, p := range r.PendingMedia {
		if p != localPath {
			kept = append(kept, p)
		}
	}
	r.PendingMedia = kept
	r.FieldUpdatedAt = time.Now()

	c.persistDraftAsync()
	return nil
}

// editableResponse validates that edits are allowed and returns the
// live response for the item.
func (c *Controller) editableResponse(itemID string) (*inspection.Response, error) {
	switch c.machine.Current() {
	case StateReady, StateSaving:
	case StateSubmitted:
		return nil, ErrSubmitted
	default:
		if c.session == nil {
			return nil, ErrNoSession
		}
		return nil, ErrSessionNotReady
	}

	r := c.session.response(itemID)
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	return r, nil
}

// NextSection advances the current section, clamped to the template.
func (c *Controller) NextSection() int { return c.shiftSection(+1) }

// PreviousSection moves back one section, clamped to zero.
func (c *Controller) PreviousSection() int { return c.shiftSection(-1) }

func (c *Controller) shiftSection(delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return 0
	}
	return c.goToSectionLocked(c.session.CurrentSectionIndex + delta)
}

// GoToSection jumps to a specific section, clamped to the template.
func (c *Controller) GoToSection(index int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return 0
	}
	return c.goToSectionLocked(index)
}

func (c *Controller) goToSectionLocked(index int) int {
	if max := c.session.Template.SectionCount() - 1; index > max {
		index = max
	}
	if index < 0 {
		index = 0
	}
	if index != c.session.CurrentSectionIndex {
		c.session.CurrentSectionIndex = index
		c.persistDraftAsync()
	}
	return index
}

// ResetInspection clears the in-memory session. The draft cache and
// mutation queue are untouched; a later LoadInspection resumes from
// them.
func (c *Controller) ResetInspection() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = nil
	c.lastErr = ""
	_ = c.machine.Event(context.Background(), eventReset)
}

// SaveResponses persists the draft locally and best-effort syncs to
// the remote system. Save never fails visibly: offline or failing
// remote writes fall back to the mutation queue.
//
// A second Save while one is in flight returns ErrSaveInFlight.
func (c *Controller) SaveResponses(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ErrNoSession
	}
	if c.machine.Current() == StateSaving {
		return ErrSaveInFlight
	}
	if err := c.machine.Event(ctx, eventBeginSave); err != nil {
		if c.machine.Current() == StateSubmitted {
			return ErrSubmitted
		}
		return fmt.Errorf("%w: cannot save from state %s", ErrSessionNotReady, c.machine.Current())
	}
	defer func() { _ = c.machine.Event(ctx, eventSaveDone) }()

	c.saveLocked(ctx)
	c.setErr(nil)
	return nil
}

// saveLocked is the shared save path used by SaveResponses and
// SubmitInspection. It cannot fail: every error degrades to queueing
// or is logged.
func (c *Controller) saveLocked(ctx context.Context) {
	// Local draft first, always. A cache failure is logged, never
	// surfaced into the edit path.
	if err := c.persistDraftLocked(ctx); err != nil {
		c.logger.Printf("Warning: failed to persist draft for %s: %v", c.session.Report.ID, err)
	}

	qualifying := c.qualifyingResponses()
	if len(qualifying) == 0 {
		return
	}

	if !c.connectivity.IsOnline() {
		c.enqueueAll(ctx, qualifying)
		c.logger.Printf("Offline: queued %d mutations for %s", len(qualifying), c.session.Report.ID)
		return
	}

	for i, r := range qualifying {
		params := c.upsertParams(r)
		if _, err := c.reports.UpsertResponse(ctx, params); err != nil {
			// Transient write failure: fall back to queueing ALL
			// qualifying items, not just the remainder, so the queue
			// holds a complete picture of this save.
			c.logger.Printf("Warning: remote upsert failed for item %s (%d/%d), queueing all: %v",
				r.TemplateItemID, i+1, len(qualifying), err)
			c.enqueueAll(ctx, qualifying)
			return
		}

		// The remote row now reflects this item's full current state;
		// older queued mutations for it are stale and must not replay.
		if err := c.store.RemoveForItemContext(ctx, c.session.Report.ID, r.TemplateItemID); err != nil {
			c.logger.Printf("Warning: failed to clear queue for item %s: %v", r.TemplateItemID, err)
		}
	}
}

// qualifyingResponses returns responses worth syncing remotely: those
// with a recorded value or at least one pending media reference.
func (c *Controller) qualifyingResponses() []*inspection.Response {
	var out []*inspection.Response
	for _, r := range c.session.responsesInOrder() {
		if !r.Value.IsZero() || len(r.PendingMedia) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// upsertParams builds the remote upsert for one response.
func (c *Controller) upsertParams(r *inspection.Response) remote.UpsertParams {
	item, _ := c.session.Template.Item(r.TemplateItemID)
	return remote.UpsertParams{
		ReportID:       c.session.Report.ID,
		TemplateItemID: r.TemplateItemID,
		ItemLabel:      item.Label,
		ItemType:       item.ItemType,
		ResponseValue:  r.Value.MustEncode(),
		Severity:       r.Severity,
		Notes:          r.Notes,
	}
}

// enqueueAll queues one mutation per qualifying response. A failed
// enqueue is logged; the draft cache still holds the data.
func (c *Controller) enqueueAll(ctx context.Context, responses []*inspection.Response) {
	for _, r := range responses {
		item, _ := c.session.Template.Item(r.TemplateItemID)
		payload := cache.ResponsePayload{
			ReportID:       c.session.Report.ID,
			TemplateItemID: r.TemplateItemID,
			ItemLabel:      item.Label,
			ItemType:       item.ItemType,
			ResponseValue:  r.Value.MustEncode(),
			Severity:       r.Severity,
			Notes:          r.Notes,
		}
		if err := c.store.EnqueueContext(ctx, cache.MutationResponse, payload); err != nil {
			c.logger.Printf("Warning: failed to enqueue mutation for item %s: %v", r.TemplateItemID, err)
		}
	}
}

// SubmitInspection finalizes the report: saves, uploads pending media
// sequentially per item, rewrites uploaded items' values to their
// storage references, and flips the report to submitted.
//
// Partial media failures produce a warning naming the affected items
// but do not block submission. Only a failure of the final status flip
// is returned as an error; the caller may retry, and re-submission
// re-uploads only items still lacking references.
func (c *Controller) SubmitInspection(ctx context.Context) (*SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, ErrNoSession
	}
	if err := c.machine.Event(ctx, eventBeginSubmit); err != nil {
		if c.machine.Current() == StateSubmitted {
			return nil, ErrSubmitted
		}
		return nil, fmt.Errorf("%w: cannot submit from state %s", ErrSessionNotReady, c.machine.Current())
	}

	c.saveLocked(ctx)

	failedItems := c.uploadPendingMedia(ctx)

	submittedAt := time.Now()
	if err := c.reports.SubmitReport(ctx, c.session.Report.ID, submittedAt); err != nil {
		_ = c.machine.Event(ctx, eventSubmitFailed)
		c.setErr(err)
		return nil, fmt.Errorf("failed to submit report %s: %w", c.session.Report.ID, err)
	}

	c.session.Report.Status = inspection.StatusSubmitted
	c.session.Report.SubmittedAt = &submittedAt

	// Terminal: the draft has served its purpose.
	if err := c.store.DeleteDraftContext(ctx, c.session.Report.ID); err != nil {
		c.logger.Printf("Warning: failed to delete draft for %s: %v", c.session.Report.ID, err)
	}

	c.setErr(nil)
	_ = c.machine.Event(ctx, eventSubmitDone)
	c.logger.Printf("Submitted inspection: report=%s", c.session.Report.ID)

	result := &SubmitResult{}
	if len(failedItems) > 0 {
		result.Warning = fmt.Sprintf("media upload failed for: %s", strings.Join(failedItems, ", "))
	}
	return result, nil
}

// uploadPendingMedia uploads each item's pending media sequentially,
// tracking per-item success independently. Items with at least one
// successful upload get their value rewritten to the storage
// reference(s) and re-upserted; items whose uploads all failed are
// returned by label for the submission warning.
func (c *Controller) uploadPendingMedia(ctx context.Context) []string {
	var failedItems []string

	for _, item := range c.session.Template.Items() {
		r := c.session.Responses[item.ID]
		if r == nil || len(r.PendingMedia) == 0 {
			continue
		}

		var uploaded []string
		var stillPending []string
		for _, path := range r.PendingMedia {
			if c.media == nil {
				stillPending = append(stillPending, path)
				continue
			}
			ref, err := c.media.UploadMediaFile(ctx, c.session.Report.ID, item.ID, path, "photo")
			if err != nil {
				c.logger.Printf("Warning: upload failed for %s (item %s): %v", path, item.ID, err)
				stillPending = append(stillPending, path)
				continue
			}
			uploaded = append(uploaded, ref)
		}

		if len(uploaded) == 0 {
			label := item.Label
			if label == "" {
				label = item.ID
			}
			failedItems = append(failedItems, label)
			continue
		}

		if len(uploaded) == 1 {
			r.Value = inspection.ScalarValue(uploaded[0])
		} else {
			// Multiple references are stored as a JSON-encoded list.
			refs, err := json.Marshal(uploaded)
			if err == nil {
				r.Value = inspection.ScalarValue(string(refs))
			} else {
				r.Value = inspection.ScalarValue(uploaded[0])
			}
		}
		r.PendingMedia = stillPending
		r.FieldUpdatedAt = time.Now()

		if _, err := c.reports.UpsertResponse(ctx, c.upsertParams(r)); err != nil {
			// Absorbed like any transient write failure.
			c.logger.Printf("Warning: failed to upsert uploaded refs for item %s, queueing: %v", item.ID, err)
			c.enqueueAll(ctx, []*inspection.Response{r})
		}
	}

	return failedItems
}

// persistDraftLocked writes the draft synchronously.
func (c *Controller) persistDraftLocked(ctx context.Context) error {
	return c.store.SaveDraftContext(ctx, c.draftLocked())
}

// draftLocked projects the session into its durable draft form.
func (c *Controller) draftLocked() *cache.Draft {
	return &cache.Draft{
		ReportID:            c.session.Report.ID,
		TemplateID:          c.session.Template.ID,
		RecordID:            c.session.Report.RecordID,
		Responses:           c.session.responsesInOrder(),
		CurrentSectionIndex: c.session.CurrentSectionIndex,
		LastUpdated:         time.Now(),
		Version:             cache.DraftSchemaVersion,
	}
}

// persistDraftAsync snapshots the draft under the lock and writes it
// on a background goroutine. Outcomes flow to PersistResults; a full
// channel drops the oldest signal rather than blocking an edit.
func (c *Controller) persistDraftAsync() {
	if c.session == nil || c.session.Report == nil {
		return
	}

	draft := c.draftLocked()
	for i := range draft.Responses {
		draft.Responses[i] = draft.Responses[i].Clone()
	}

	c.persistWG.Add(1)
	go func() {
		defer c.persistWG.Done()
		err := c.store.SaveDraft(draft)
		if err != nil {
			c.logger.Printf("Warning: background draft write failed for %s: %v", draft.ReportID, err)
		}
		select {
		case c.persistCh <- err:
		default:
			select {
			case <-c.persistCh:
			default:
			}
			select {
			case c.persistCh <- err:
			default:
			}
		}
	}()
}
