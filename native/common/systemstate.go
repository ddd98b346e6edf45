package common

import "sync"

// SystemState is the operator-controlled implementation of SystemView shared
// by the engine and the admin surface. The pause flag halts every normal
// lifecycle entry point; disaster mode additionally opens the emergency drain
// path while paused.
type SystemState struct {
	mu       sync.RWMutex
	paused   bool
	disaster bool
}

// NewSystemState returns a running (unpaused) system state.
func NewSystemState() *SystemState { return &SystemState{} }

// IsPaused implements SystemView. The pause switch is global; the module name
// only exists so call sites stay explicit about what they gate.
func (s *SystemState) IsPaused(string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// IsDisasterMode implements SystemView.
func (s *SystemState) IsDisasterMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disaster
}

// SetPaused toggles the global pause switch.
func (s *SystemState) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
	if !paused {
		// Leaving pause always closes the drain path.
		s.disaster = false
	}
}

// SetDisaster toggles disaster mode. It only has effect while paused.
func (s *SystemState) SetDisaster(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disaster = enabled
}
