package config

import (
	"fmt"
	"sync"
)

// Holder provides concurrent access to the current Config and supports
// reloading it from the original YAML path. Workflow instances copy their
// review policy at start, so a reload only affects instances started after
// it.
type Holder struct {
	mu    sync.RWMutex
	cfg   *Config
	path  string
	flags CLIFlags
}

// NewHolder wraps an already loaded Config with its source path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Get returns the current Config. Callers must not mutate it.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Path returns the YAML path the Holder reloads from.
func (h *Holder) Path() string {
	return h.path
}

// Reload re-runs the full load hierarchy from the stored path, including any
// CLI flags the Holder was created with. On any load or validation error the
// previous Config is preserved.
func (h *Holder) Reload() error {
	cfg, err := loadMerged(h.path, h.flags)
	if err != nil {
		return fmt.Errorf("config reload: %w", err)
	}

	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
	return nil
}
