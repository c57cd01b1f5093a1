package web

import (
	"encoding/json"
	"testing"
	"time"
)

// nextEvent decodes the next event on ch or fails after a second.
func nextEvent(t *testing.T, ch <-chan string) StatusEvent {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal %q: %v", msg, err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
	return StatusEvent{}
}

func TestBroadcaster_RunLifecycle(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	const run = "5b8f0a52-77d1-4c3e-9e43-0f1d2a6c9b10"
	b.BroadcastRun(run, "info", "bracket started")
	b.Broadcast("log", "Picture 0 saved to TestHDR/Test_04/DSC_0001.JPG")
	b.BroadcastRun(run, "info", "bracket complete in 4.2s")

	start := nextEvent(t, ch)
	if start.Run != run || start.Level != "info" || start.Msg != "bracket started" {
		t.Errorf("start event = %+v", start)
	}
	if _, err := time.Parse(time.RFC3339, start.Time); err != nil {
		t.Errorf("event time %q is not RFC3339: %v", start.Time, err)
	}

	shot := nextEvent(t, ch)
	if shot.Run != "" || shot.Level != "log" {
		t.Errorf("log line should carry no run id, got %+v", shot)
	}

	done := nextEvent(t, ch)
	if done.Run != run || done.Msg != "bracket complete in 4.2s" {
		t.Errorf("completion event = %+v", done)
	}
}

func TestBroadcaster_EveryClientSeesFailure(t *testing.T) {
	b := NewStatusBroadcaster()
	page, unsubPage := b.Subscribe()
	defer unsubPage()
	phone, unsubPhone := b.Subscribe()
	defer unsubPhone()

	b.BroadcastRun("tl-1", "error", `timelapse failed: camera: capture: capture failed: PTP I/O error`)

	for name, ch := range map[string]<-chan string{"page": page, "phone": phone} {
		evt := nextEvent(t, ch)
		if evt.Level != "error" || evt.Run != "tl-1" {
			t.Errorf("%s: event = %+v", name, evt)
		}
	}
}

func TestBroadcaster_RunIDOmittedFromPlainEvents(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast("info", "camera ready")
	raw := <-ch
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		t.Fatal(err)
	}
	if _, ok := fields["run"]; ok {
		t.Errorf("plain event should omit run: %s", raw)
	}
}

func TestBroadcaster_DisconnectClosesStream(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	// a run finishing after the page left must not panic
	b.BroadcastRun("run-2", "info", "timelapse complete in 10s")
}

func TestBroadcaster_SlowClientMissesShots(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	// a long time-lapse on a client that never reads
	for i := 0; i < 100; i++ {
		b.Broadcast("log", "shot")
	}

	count := 0
	for len(ch) > 0 {
		<-ch
		count++
	}
	if count != 64 {
		t.Errorf("buffered %d events, want 64", count)
	}
}

func TestBroadcastWriter_DebugLinesBecomeLogEvents(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	w := BroadcastWriter(b)
	in := "time=\"12:00:01\" level=info msg=\"Bracketing: 3 photos planned\" scope=info\n\n" +
		"  time=\"12:00:02\" level=info msg=\"Picture 0 saved\" scope=live  \n"
	n, err := w.Write([]byte(in))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(in) {
		t.Errorf("n = %d, want %d", n, len(in))
	}

	first, second := nextEvent(t, ch), nextEvent(t, ch)
	if first.Level != "log" || second.Level != "log" {
		t.Errorf("levels = %q, %q; want log", first.Level, second.Level)
	}
	if first.Msg != `time="12:00:01" level=info msg="Bracketing: 3 photos planned" scope=info` {
		t.Errorf("first = %q", first.Msg)
	}
	if second.Msg != `time="12:00:02" level=info msg="Picture 0 saved" scope=live` {
		t.Errorf("second = %q", second.Msg)
	}
}

func TestBroadcastWriter_BlankWriteIgnored(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	BroadcastWriter(b).Write([]byte(" \n\t\n"))

	select {
	case msg := <-ch:
		t.Errorf("unexpected event %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
