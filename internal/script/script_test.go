package script

import "testing"

// TestNoOpScriptHostIsSafe exercises every method with zero values to
// confirm none panics when no engine is configured.
func TestNoOpScriptHostIsSafe(t *testing.T) {
	var h NoOpScriptHost
	h.PlayerAdded(1, "nick")
	h.PlayerDeleted(1, "nick")
	h.GameCmd(1, "cmd")
	h.FrameStep(1.0)
	if mode := h.PlayerChat(1, "hello"); mode > 0 {
		t.Fatalf("got override mode %d, want <= 0", mode)
	}
}
