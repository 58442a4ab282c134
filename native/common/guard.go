package common

import "errors"

// ErrModulePaused is returned by mutating flows while their module is paused.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module is currently paused.
type PauseView interface {
	IsPaused(module string) bool
}

// StaticPauses is a fixed pause table, typically loaded from configuration.
type StaticPauses map[string]bool

// IsPaused implements PauseView.
func (s StaticPauses) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	return s[module]
}

// Guard returns ErrModulePaused when p reports module as paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
