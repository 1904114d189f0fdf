package boxmgr

import (
	"log/slog"
	"time"
)

// Core process and control-plane constants
const (
	// ReadyMarker is the console line fragment the core prints once it is fully initialized
	ReadyMarker = "sing-box started"

	// VersionPrefix prefixes the version line of the core's "version" output
	VersionPrefix = "sing-box version"

	// TagsPrefix prefixes the build tags line of the core's "version" output
	TagsPrefix = "Tags:"

	// DefaultControlListen is the control-plane listen address injected when the configuration has none
	DefaultControlListen = "127.0.0.1:9090"

	// DefaultLogCapacity is the number of console lines retained for new log subscribers
	DefaultLogCapacity = 16

	// DefaultStopTimeout is how long a gracefully signalled core may take to exit before it is killed
	DefaultStopTimeout = 5 * time.Second

	// DefaultConfigWriteTimeout bounds how long the core may take to read its configuration from stdin
	DefaultConfigWriteTimeout = 10 * time.Second

	// DefaultCoreWatchDebounce coalesces bursts of filesystem events on the core binary
	DefaultCoreWatchDebounce = 250 * time.Millisecond

	// DefaultCoreName is the file name used for uploads that do not declare one
	DefaultCoreName = "sing-box"

	// UploadTempSuffix is appended to an uploaded core while it is being validated
	UploadTempSuffix = ".temp"

	// MaxLineSize is the longest console line kept; longer lines are truncated
	MaxLineSize = 1 << 20

	// LogTimeLayout is the timestamp layout of console lines shown to log subscribers
	LogTimeLayout = "2006-01-02 15:04:05"
)

// File modes
const (
	// DirMode is the default mode for created directories
	DirMode = 0o755

	// FileMode is the default mode for created files
	FileMode = 0o644

	// ExecMode is the default mode for the core binary and hook scripts
	ExecMode = 0o755
)

// Operation represents a supervisor operation type
type Operation int

const (
	// OpUnknown represents an unknown operation
	OpUnknown Operation = iota
	// OpStart starts the core (alias of OpRestart)
	OpStart
	// OpStop stops the running core
	OpStop
	// OpRestart tears down any running core and starts a new one
	OpRestart
	// OpPrepare loads the core path and active configuration from the store
	OpPrepare
	// OpSpawn launches the core process
	OpSpawn
	// OpVersion queries the core binary for its version
	OpVersion
	// OpUploadWrite writes an uploaded core to its temporary path
	OpUploadWrite
	// OpUploadValidate checks that an uploaded core answers a version query
	OpUploadValidate
	// OpUploadPublish moves a validated core to its final path
	OpUploadPublish
)

// Operation string constants
const (
	opUnknownStr        = "unknown"
	opStartStr          = "start"
	opStopStr           = "stop"
	opRestartStr        = "restart"
	opPrepareStr        = "prepare"
	opSpawnStr          = "spawn"
	opVersionStr        = "version"
	opUploadWriteStr    = "upload write"
	opUploadValidateStr = "upload validate"
	opUploadPublishStr  = "upload publish"
)

// String returns the string representation of an Operation
func (op Operation) String() string {
	switch op {
	case OpStart:
		return opStartStr
	case OpStop:
		return opStopStr
	case OpRestart:
		return opRestartStr
	case OpPrepare:
		return opPrepareStr
	case OpSpawn:
		return opSpawnStr
	case OpVersion:
		return opVersionStr
	case OpUploadWrite:
		return opUploadWriteStr
	case OpUploadValidate:
		return opUploadValidateStr
	case OpUploadPublish:
		return opUploadPublishStr
	default:
		return opUnknownStr
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
