package automation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Diagnostics captures page screenshots for failed pipeline runs. Capture is
// best-effort: a failed capture is logged and returns an empty reference, it
// never masks the failure being diagnosed.
type Diagnostics struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewDiagnostics creates a capturer writing into dir.
func NewDiagnostics(dir string, logger *slog.Logger) *Diagnostics {
	return &Diagnostics{dir: dir, logger: logger, now: time.Now}
}

// Capture screenshots the page and returns the artifact reference, or ""
// when the capture could not be taken.
func (d *Diagnostics) Capture(page Page, jobID, state string) string {
	if page == nil {
		return ""
	}

	data, err := page.Screenshot()
	if err != nil {
		d.logger.Warn("diagnostic screenshot failed", "job_id", jobID, "state", state, "error", err)
		return ""
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.logger.Warn("diagnostic dir create failed", "dir", d.dir, "error", err)
		return ""
	}

	name := fmt.Sprintf("%s_%s_%d.png", jobID, state, d.now().Unix())
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		d.logger.Warn("diagnostic write failed", "path", path, "error", err)
		return ""
	}

	d.logger.Info("diagnostic captured", "job_id", jobID, "state", state, "path", path)
	return path
}
