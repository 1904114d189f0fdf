package boxmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// RunType selects the lifecycle point a script is attached to
type RunType uint8

const (
	// RunDisabled marks a stored script that never runs
	RunDisabled RunType = iota
	// RunBeforeStart runs before the core is spawned
	RunBeforeStart
	// RunAfterStart runs each time the core reports readiness
	RunAfterStart
	// RunBeforeClose runs before a cancelled core is terminated
	RunBeforeClose
	// RunAfterClose runs after the core is gone, whatever the cause
	RunAfterClose
)

// LifecycleRunTypes lists the run types that hold a lifecycle point, in firing order
var LifecycleRunTypes = []RunType{RunBeforeStart, RunAfterStart, RunBeforeClose, RunAfterClose}

// RunType string constants
const (
	runDisabledStr    = "disabled"
	runBeforeStartStr = "before_start"
	runAfterStartStr  = "after_start"
	runBeforeCloseStr = "before_close"
	runAfterCloseStr  = "after_close"
)

// String returns the string representation of a RunType
func (r RunType) String() string {
	switch r {
	case RunBeforeStart:
		return runBeforeStartStr
	case RunAfterStart:
		return runAfterStartStr
	case RunBeforeClose:
		return runBeforeCloseStr
	case RunAfterClose:
		return runAfterCloseStr
	default:
		return runDisabledStr
	}
}

// Label returns the human readable name used in logs and temp file names
func (r RunType) Label() string {
	return strings.ReplaceAll(r.String(), "_", " ") + " script"
}

// ParseRunType parses the string form of a RunType, accepting "-" or "_" separators
func ParseRunType(s string) (RunType, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case runDisabledStr, "":
		return RunDisabled, nil
	case runBeforeStartStr:
		return RunBeforeStart, nil
	case runAfterStartStr:
		return RunAfterStart, nil
	case runBeforeCloseStr:
		return RunBeforeClose, nil
	case runAfterCloseStr:
		return RunAfterClose, nil
	default:
		return RunDisabled, fmt.Errorf("unknown run type %q", s)
	}
}

// Config is the active configuration as stored
type Config struct {
	// ID is the store's identifier for the configuration
	ID string `json:"id"`
	// Tag is the human name shown as the running config
	Tag string `json:"tag"`
	// Document is the core configuration, a JSON object
	Document json.RawMessage `json:"config"`
}

// Script is a stored lifecycle hook
type Script struct {
	// Tag is the human name of the script
	Tag string `json:"tag"`
	// Content is written verbatim to the script file
	Content string `json:"content"`
	// RunType is the lifecycle point the script is attached to
	RunType RunType `json:"run_type"`
}

// Store is the persistence collaborator the supervisor reads from.
// Absent values are reported as zero values with a nil error; errors are
// reserved for read failures.
type Store interface {
	// CorePath returns the core binary path, or "" when unset
	CorePath(ctx context.Context) (string, error)

	// ActiveConfig returns the configuration marked active, or nil
	ActiveConfig(ctx context.Context) (*Config, error)

	// AutoStart reports whether the core should be started at boot
	AutoStart(ctx context.Context) (bool, error)

	// Script returns the script holding the given run type, or nil
	Script(ctx context.Context, runType RunType) (*Script, error)
}
