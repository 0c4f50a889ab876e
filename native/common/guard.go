package common

import (
	"errors"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is a mutable PauseView toggled by operators at runtime.
type Pauses struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauses seeds the pause set with the provided module names.
func NewPauses(modules ...string) *Pauses {
	p := &Pauses{paused: make(map[string]bool)}
	for _, module := range modules {
		p.Set(module, true)
	}
	return p
}

func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[normalize(module)]
}

func (p *Pauses) Set(module string, paused bool) {
	module = normalize(module)
	if module == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if paused {
		p.paused[module] = true
		return
	}
	delete(p.paused, module)
}

func normalize(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
