// Package dashboard provides event handling and message formatting for the dashboard.
package dashboard

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/theonlywayisdigital/donedex-sub002/internal/merge"
)

// Handler receives sync engine events and formats them as dashboard
// messages. It bridges between the cache/drain layers and the
// WebSocket server.
type Handler struct {
	server *Server
	logger *log.Logger

	// Statistics tracking
	mu    sync.Mutex
	stats StatusData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		logger: logger,
	}
}

// OnDraftSaved handles local draft write events
func (h *Handler) OnDraftSaved(reportID string, responses int) {
	h.logger.Printf("Draft saved: %s (%d responses)", reportID, responses)

	h.mu.Lock()
	h.stats.DraftsSaved++
	h.mu.Unlock()

	h.broadcastData(MessageTypeDraftSaved, DraftSavedData{
		ReportID:  reportID,
		Responses: responses,
	})
	h.broadcastStats()
}

// OnMutationsQueued handles offline save events
func (h *Handler) OnMutationsQueued(reportID string, count int) {
	h.logger.Printf("Mutations queued: %s (%d)", reportID, count)

	h.mu.Lock()
	h.stats.QueueDepth += count
	h.mu.Unlock()

	h.broadcastData(MessageTypeMutationQueued, MutationQueuedData{
		ReportID: reportID,
		Count:    count,
	})
	h.broadcastStats()
}

// OnDrainComplete handles drain cycle completion events
func (h *Handler) OnDrainComplete(drained int, duration time.Duration, err error) {
	h.logger.Printf("Drain complete: %d mutations in %v (err=%v)", drained, duration, err)

	h.mu.Lock()
	h.stats.Drained += drained
	h.stats.QueueDepth -= drained
	if h.stats.QueueDepth < 0 {
		h.stats.QueueDepth = 0
	}
	h.mu.Unlock()

	data := DrainCompleteData{
		Drained:  drained,
		Duration: duration,
	}
	if err != nil {
		data.Error = err.Error()
	}
	h.broadcastData(MessageTypeDrainComplete, data)
	h.broadcastStats()
}

// OnConflict handles per-field merge conflict events from a load
func (h *Handler) OnConflict(reportID, itemID, field string, winner merge.Side) {
	h.logger.Printf("Conflict: report=%s item=%s field=%s winner=%s", reportID, itemID, field, winner)

	h.mu.Lock()
	h.stats.Conflicts++
	h.mu.Unlock()

	h.broadcastData(MessageTypeConflict, ConflictData{
		ReportID: reportID,
		ItemID:   itemID,
		Field:    field,
		Winner:   string(winner),
	})
	h.broadcastStats()
}

// OnSubmitted handles report submission events
func (h *Handler) OnSubmitted(reportID, warning string) {
	h.logger.Printf("Submitted: %s (warning=%q)", reportID, warning)

	h.mu.Lock()
	h.stats.Submitted++
	h.mu.Unlock()

	h.broadcastData(MessageTypeSubmitted, SubmittedData{
		ReportID: reportID,
		Warning:  warning,
	})
	h.broadcastStats()
}

// OnConnectivityChanged handles online/offline transitions
func (h *Handler) OnConnectivityChanged(online bool) {
	h.logger.Printf("Connectivity: online=%v", online)

	h.mu.Lock()
	h.stats.Online = online
	h.mu.Unlock()

	h.broadcastStats()
}

// SetQueueDepth overwrites the tracked queue depth with an observed
// value, correcting drift from missed events.
func (h *Handler) SetQueueDepth(depth int) {
	h.mu.Lock()
	h.stats.QueueDepth = depth
	h.mu.Unlock()

	h.broadcastStats()
}

// GetStats returns the current statistics
func (h *Handler) GetStats() StatusData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// broadcastData marshals and broadcasts one typed payload
func (h *Handler) broadcastData(typ MessageType, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}

	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats() {
	h.mu.Lock()
	stats := h.stats
	h.mu.Unlock()

	dataJSON, err := json.Marshal(stats)
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeStatus,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
