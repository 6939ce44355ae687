package window

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/zxsharp/active-app-worker/internal/config"
	"github.com/zxsharp/active-app-worker/internal/logger"
)

// ownerForPID fills a sample's owner fields from its PID. Best-effort: a
// vanished or unreadable process leaves the fields empty and the sample
// still stands on its title.
func ownerForPID(sample *config.Sample) {
	if sample.PID <= 0 {
		return
	}

	if proc, err := ps.FindProcess(sample.PID); err == nil && proc != nil {
		sample.OwnerName = proc.Executable()
	}

	if path, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", sample.PID)); err == nil {
		// The kernel appends " (deleted)" when the binary was replaced
		sample.OwnerPath = strings.TrimSuffix(path, " (deleted)")
		if sample.OwnerName == "" {
			sample.OwnerName = filepath.Base(sample.OwnerPath)
		}
	}

	if sample.OwnerName == "" {
		if comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", sample.PID)); err == nil {
			sample.OwnerName = strings.TrimSpace(string(comm))
		}
	}

	if sample.OwnerName == "" && sample.OwnerPath == "" {
		logger.WithComponent("window").Debug().
			Int("pid", sample.PID).
			Msg("Could not resolve window owner")
	}
}
