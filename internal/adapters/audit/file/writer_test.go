package file

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/vshulcz/Gatecounter/internal/services/audit"
)

func TestWriter_Notify_AppendsJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	w := New(path)

	events := []audit.Event{
		{Timestamp: 1, PassID: "p1", Trigger: audit.TriggerSchedule, Recorded: []string{"FM South gate"}, Failed: []string{}},
		{Timestamp: 2, PassID: "p2", Trigger: audit.TriggerManual, IPAddress: "127.0.0.1", Recorded: []string{}, Failed: []string{"Gate 2"}},
	}
	for _, evt := range events {
		if err := w.Notify(context.Background(), evt); err != nil {
			t.Fatalf("Notify error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Notify(context.Background(), audit.Event{PassID: "p3"}); err != nil {
		t.Fatalf("Notify after Close must reopen: %v", err)
	}
	_ = w.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var got []audit.Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var evt audit.Event
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			t.Fatalf("unmarshal %q: %v", sc.Text(), err)
		}
		got = append(got, evt)
	}
	if len(got) != 3 {
		t.Fatalf("lines=%d want 3", len(got))
	}
	if got[1].IPAddress != "127.0.0.1" || got[1].Failed[0] != "Gate 2" || got[2].PassID != "p3" {
		t.Fatalf("decoded mismatch: %+v", got)
	}
}

func TestWriter_Nil(t *testing.T) {
	var w *Writer
	if err := w.Notify(context.Background(), audit.Event{}); err != nil {
		t.Fatalf("nil writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
	if err := New("").Notify(context.Background(), audit.Event{}); err != nil {
		t.Fatalf("empty path: %v", err)
	}
}

func TestWriter_OpenError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	w := New(filepath.Join(blocker, "audit.log"))
	if err := w.Notify(context.Background(), audit.Event{}); err == nil {
		t.Fatal("expected error when parent is a regular file")
	}
}
