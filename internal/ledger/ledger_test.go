package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/fujitsud/internal/db"
	"github.com/dokzlo13/fujitsud/internal/eventbus"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestAppendAndQuery(t *testing.T) {
	l := openLedger(t)

	if err := l.AppendWithSource(EventCommand, "req-1", "mqtt", map[string]any{"mode": "cool"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(EventDeviceError, map[string]any{"error_code": 7}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	cmds, err := l.GetByType(EventCommand, 10)
	if err != nil {
		t.Fatalf("GetByType: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	if cmds[0].Source != "mqtt" || cmds[0].RequestID != "req-1" || cmds[0].Payload["mode"] != "cool" {
		t.Errorf("unexpected entry %+v", cmds[0])
	}

	errs, err := l.GetByType(EventDeviceError, 10)
	if err != nil {
		t.Fatalf("GetByType: %v", err)
	}
	if len(errs) != 1 || errs[0].Payload["error_code"] != float64(7) {
		t.Errorf("device errors = %+v", errs)
	}

	all, err := l.Recent(10)
	if err != nil || len(all) != 2 {
		t.Errorf("Recent = %d entries, %v", len(all), err)
	}
}

func TestRequestRecordedOnce(t *testing.T) {
	l := openLedger(t)

	for i := 0; i < 3; i++ {
		if err := l.AppendWithSource(EventCommand, "req-dup", "http", nil); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	cmds, _ := l.GetByType(EventCommand, 10)
	if len(cmds) != 1 {
		t.Errorf("got %d rows for one request, want 1", len(cmds))
	}
	if !l.HasRequest("req-dup") {
		t.Error("HasRequest = false")
	}
	if l.HasRequest("") || l.HasRequest("other") {
		t.Error("HasRequest matched unknown request")
	}
}

func TestDeleteOlderThan(t *testing.T) {
	l := openLedger(t)

	old := time.Now().Add(-48 * time.Hour).Unix()
	if _, err := l.db.Exec(`INSERT INTO climate_ledger (event_type, timestamp) VALUES (?, ?)`, string(EventAvailability), old); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := l.Append(EventAvailability, map[string]any{"online": true}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	deleted, err := l.DeleteOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

func TestAttachRecordsBusEvents(t *testing.T) {
	l := openLedger(t)
	bus := eventbus.NewWithConfig(1, 10)
	l.Attach(bus)

	bus.Publish(eventbus.Event{Type: eventbus.EventTypeCommand, Data: map[string]any{
		"request_id": "abc",
		"source":     "lua",
	}})
	bus.Publish(eventbus.Event{Type: eventbus.EventTypeState, Data: map[string]any{"mode": "heat"}})
	bus.Close(context.Background())

	if !l.HasRequest("abc") {
		t.Error("command event not recorded")
	}
	all, _ := l.Recent(10)
	if len(all) != 1 {
		t.Errorf("recorded %d entries, want only the command", len(all))
	}
}
