package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/theonlywayisdigital/donedex-sub002/internal/merge"
)

// fixedQueue is a QueueDepther with a canned answer.
type fixedQueue struct {
	depth int
	err   error
}

func (q fixedQueue) PendingCount(ctx context.Context) (int, error) {
	return q.depth, q.err
}

func startTestServer(t *testing.T, queue QueueDepther) *Server {
	t.Helper()

	server := NewServer(&Config{
		Port:   0, // Use random available port
		Queue:  queue,
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	// Give server time to start
	time.Sleep(100 * time.Millisecond)
	return server
}

func dialTestClient(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	// Read welcome message
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := startTestServer(t, nil)

	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialTestClient(t, ctx, server)

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestMultipleClients(t *testing.T) {
	server := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	for i := 0; i < numClients; i++ {
		dialTestClient(t, ctx, server)
	}

	if count := server.ClientCount(); count != numClients {
		t.Errorf("Expected %d clients, got %d", numClients, count)
	}
}

func TestBroadcastDrainComplete(t *testing.T) {
	server := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	dataJSON, _ := json.Marshal(DrainCompleteData{Drained: 4, Duration: time.Second})
	server.Broadcast(Message{
		Type:      MessageTypeDrainComplete,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeDrainComplete {
		t.Fatalf("Expected message type %s, got %s", MessageTypeDrainComplete, msg.Type)
	}

	var received DrainCompleteData
	if err := json.Unmarshal(msg.Data, &received); err != nil {
		t.Fatalf("Failed to unmarshal drain data: %v", err)
	}
	if received.Drained != 4 {
		t.Errorf("Expected 4 drained, got %d", received.Drained)
	}
}

func TestHandlerQueueEvents(t *testing.T) {
	server := startTestServer(t, nil)
	handler := NewHandler(server, log.New(os.Stderr, "[test-handler] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	handler.OnMutationsQueued("report-1", 3)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeMutationQueued {
		t.Fatalf("Expected message type %s, got %s", MessageTypeMutationQueued, msg.Type)
	}

	var queued MutationQueuedData
	if err := json.Unmarshal(msg.Data, &queued); err != nil {
		t.Fatalf("Failed to unmarshal queued data: %v", err)
	}
	if queued.ReportID != "report-1" || queued.Count != 3 {
		t.Errorf("Queued data mismatch: %+v", queued)
	}

	// Stats follow every event.
	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStatus {
		t.Fatalf("Expected message type %s, got %s", MessageTypeStatus, msg.Type)
	}

	var stats StatusData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.QueueDepth != 3 {
		t.Errorf("Expected queue depth 3, got %d", stats.QueueDepth)
	}

	handler.OnDrainComplete(3, time.Second, nil)
	if got := handler.GetStats(); got.QueueDepth != 0 || got.Drained != 3 {
		t.Errorf("Expected depth 0 drained 3, got %+v", got)
	}
}

func TestHandlerConflictEvents(t *testing.T) {
	server := startTestServer(t, nil)
	handler := NewHandler(server, log.New(os.Stderr, "[test-handler] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	handler.OnConflict("report-1", "item-a", "notes", merge.SideRemote)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeConflict {
		t.Fatalf("Expected message type %s, got %s", MessageTypeConflict, msg.Type)
	}

	var conflict ConflictData
	if err := json.Unmarshal(msg.Data, &conflict); err != nil {
		t.Fatalf("Failed to unmarshal conflict data: %v", err)
	}
	if conflict.ItemID != "item-a" || conflict.Field != "notes" || conflict.Winner != "remote" {
		t.Errorf("Conflict data mismatch: %+v", conflict)
	}
}

func TestHandlerSubmittedWarning(t *testing.T) {
	server := startTestServer(t, nil)
	handler := NewHandler(server, log.New(os.Stderr, "[test-handler] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	handler.OnSubmitted("report-1", "media upload failed for: B")

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSubmitted {
		t.Fatalf("Expected message type %s, got %s", MessageTypeSubmitted, msg.Type)
	}

	var submitted SubmittedData
	if err := json.Unmarshal(msg.Data, &submitted); err != nil {
		t.Fatalf("Failed to unmarshal submitted data: %v", err)
	}
	if submitted.Warning == "" {
		t.Error("Expected warning carried through")
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := startTestServer(t, nil)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("Failed to GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
}

func TestStatusEndpointReportsQueueDepth(t *testing.T) {
	server := startTestServer(t, fixedQueue{depth: 7})

	resp, err := http.Get("http://" + server.GetAddr() + "/api/status")
	if err != nil {
		t.Fatalf("Failed to GET /api/status: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode status response: %v", err)
	}
	if depth, ok := body["queue_depth"].(float64); !ok || int(depth) != 7 {
		t.Errorf("Expected queue_depth 7, got %v", body["queue_depth"])
	}
}

func TestStatusEndpointSurfacesQueueError(t *testing.T) {
	server := startTestServer(t, fixedQueue{err: errors.New("database locked")})

	resp, err := http.Get("http://" + server.GetAddr() + "/api/status")
	if err != nil {
		t.Fatalf("Failed to GET /api/status: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode status response: %v", err)
	}
	if _, ok := body["queue_depth_error"]; !ok {
		t.Error("Expected queue_depth_error in response")
	}
}
