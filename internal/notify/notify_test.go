package notify

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// TestRecorderForwardsAndDrains verifies messages are kept, forwarded, and
// cleared by Drain.
func TestRecorderForwardsAndDrains(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(NewLog(slog.New(slog.NewTextHandler(&buf, nil))))

	r.Notify(LevelSuccess, "Set completed!")
	r.Notify(LevelError, "Failed to save workout")

	if got := r.Count("Set completed!"); got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
	if !strings.Contains(buf.String(), "Failed to save workout") {
		t.Errorf("log output missing forwarded message: %s", buf.String())
	}

	drained := r.Drain()
	if len(drained) != 2 || drained[1].Level != LevelError {
		t.Errorf("Drain = %+v", drained)
	}
	if len(r.Messages()) != 0 {
		t.Error("messages left after Drain")
	}
}
