package remote

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/theonlywayisdigital/donedex-sub002/internal/inspection"
)

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{
		LastID:   "rep-42",
		LastSeen: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	decoded, err := DecodeCursor(c.Encode())
	if err != nil {
		t.Fatalf("DecodeCursor failed: %v", err)
	}
	if decoded.LastID != "rep-42" {
		t.Errorf("expected last id rep-42, got %s", decoded.LastID)
	}
	if !decoded.LastSeen.Equal(c.LastSeen) {
		t.Errorf("last seen did not round trip: %v", decoded.LastSeen)
	}
}

func TestDecodeCursorEmpty(t *testing.T) {
	c, err := DecodeCursor("")
	if err != nil {
		t.Fatalf("empty cursor should decode: %v", err)
	}
	if !c.IsZero() {
		t.Errorf("empty cursor should be the first page, got %+v", c)
	}
}

func TestDecodeCursorMalformed(t *testing.T) {
	for _, bad := range []string{"!!!not-base64!!!", "bm90LWpzb24"} {
		if _, err := DecodeCursor(bad); err == nil {
			t.Errorf("expected error for malformed cursor %q", bad)
		}
	}
}

func TestNextCursorFor(t *testing.T) {
	reports := []*inspection.Report{
		{ID: "rep-1", StartedAt: time.Now()},
		{ID: "rep-2", StartedAt: time.Now()},
	}

	// Full page: cursor points at the last report.
	next := NextCursorFor(reports, 2)
	if next == "" {
		t.Fatal("expected cursor for full page")
	}
	decoded, err := DecodeCursor(next)
	if err != nil {
		t.Fatalf("DecodeCursor failed: %v", err)
	}
	if decoded.LastID != "rep-2" {
		t.Errorf("expected cursor at rep-2, got %s", decoded.LastID)
	}

	// Short page: no further pages.
	if next := NextCursorFor(reports, 5); next != "" {
		t.Errorf("expected empty cursor for short page, got %q", next)
	}
}

func TestProberCachesResult(t *testing.T) {
	dials := 0
	p := NewProber(ProberConfig{Addr: "example.com:443", TTL: time.Hour})
	p.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		dials++
		return nil, errors.New("no route to host")
	}

	if p.IsOnline() {
		t.Error("expected offline when dial fails")
	}
	if p.IsOnline() {
		t.Error("expected cached offline answer")
	}
	if dials != 1 {
		t.Errorf("expected 1 dial within TTL, got %d", dials)
	}

	p.Invalidate()
	p.IsOnline()
	if dials != 2 {
		t.Errorf("expected re-probe after Invalidate, got %d dials", dials)
	}
}
