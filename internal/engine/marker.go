package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Marker writes the durable out-of-band failure artifact. Its presence
// is the failure signal for a supervising process; the engine only ever
// writes it, clearing it is the supervisor's responsibility.
type Marker struct {
	Path string
}

// Write records a fatal run outcome. Failures to write are logged, not
// propagated: the run's own error must not be masked by a marker error.
func (m *Marker) Write(workflow, runID, reason string) {
	if m == nil || m.Path == "" {
		return
	}
	if dir := filepath.Dir(m.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("writing failure marker", "path", m.Path, "err", err)
			return
		}
	}
	content := fmt.Sprintf("workflow: %s\nrun: %s\ntime: %s\nreason: %s\n",
		workflow, runID, time.Now().Format(time.RFC3339), reason)
	if err := os.WriteFile(m.Path, []byte(content), 0o644); err != nil {
		slog.Error("writing failure marker", "path", m.Path, "err", err)
	}
}
