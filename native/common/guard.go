package common

import "errors"

var (
	// ErrModulePaused is returned when a state-mutating entry point is hit
	// while the operator has the module paused.
	ErrModulePaused = errors.New("module paused")
	// ErrDisasterInactive is returned when the emergency drain path is used
	// without both the pause and disaster flags set.
	ErrDisasterInactive = errors.New("disaster recovery not active")
)

// SystemView exposes the operator-controlled gating flags checked by every
// entry point. The pause flag halts normal lifecycle mutations; the disaster
// flag, combined with pause, enables the emergency drain path.
type SystemView interface {
	IsPaused(module string) bool
	IsDisasterMode() bool
}

// Guard rejects the call when the module is paused. A nil view or empty
// module name disables the check.
func Guard(v SystemView, module string) error {
	if v == nil || module == "" {
		return nil
	}
	if v.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// GuardDisaster permits the emergency drain path only while the module is
// paused and disaster mode has been explicitly enabled by the operator.
func GuardDisaster(v SystemView, module string) error {
	if v == nil {
		return ErrDisasterInactive
	}
	if !v.IsPaused(module) || !v.IsDisasterMode() {
		return ErrDisasterInactive
	}
	return nil
}
