package boxmgr

import (
	"sync"
	"sync/atomic"
)

// Status is a point-in-time copy of the StatusBoard
type Status struct {
	IsRunning       bool   `json:"is_running"`
	RunningConfig   string `json:"running_config"`
	CoreVersion     string `json:"core_version"`
	MemoryUsage     uint64 `json:"memory_usage"`
	ConnectionCount uint64 `json:"connection_count"`
	UploadTraffic   uint64 `json:"upload_traffic"`
	DownloadTraffic uint64 `json:"download_traffic"`
	UploadSpeed     uint64 `json:"upload_speed"`
	DownloadSpeed   uint64 `json:"download_speed"`
}

// StatusBoard holds the runtime metrics of the supervised core.
// Each field is updated atomically; writers call Notify after every
// mutation so observers waiting on Changed wake up. Observers may see a
// snapshot where some fields already carry a newer value than others.
type StatusBoard struct {
	isRunning       atomic.Bool
	memoryUsage     atomic.Uint64
	connectionCount atomic.Uint64
	uploadTraffic   atomic.Uint64
	downloadTraffic atomic.Uint64
	uploadSpeed     atomic.Uint64
	downloadSpeed   atomic.Uint64

	// mu protects the string fields
	mu            sync.RWMutex
	runningConfig string
	coreVersion   string

	notifier notifier
}

// NewStatusBoard creates an empty StatusBoard
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{}
}

// Snapshot returns the current value of every field
func (b *StatusBoard) Snapshot() Status {
	b.mu.RLock()
	runningConfig, coreVersion := b.runningConfig, b.coreVersion
	b.mu.RUnlock()

	return Status{
		IsRunning:       b.isRunning.Load(),
		RunningConfig:   runningConfig,
		CoreVersion:     coreVersion,
		MemoryUsage:     b.memoryUsage.Load(),
		ConnectionCount: b.connectionCount.Load(),
		UploadTraffic:   b.uploadTraffic.Load(),
		DownloadTraffic: b.downloadTraffic.Load(),
		UploadSpeed:     b.uploadSpeed.Load(),
		DownloadSpeed:   b.downloadSpeed.Load(),
	}
}

// Changed returns a channel that is closed at the next Notify.
// Callers must fetch a fresh channel after each wake-up.
func (b *StatusBoard) Changed() <-chan struct{} {
	return b.notifier.wait()
}

// Notify wakes every observer currently waiting on Changed
func (b *StatusBoard) Notify() {
	b.notifier.broadcast()
}

// SetRunning records whether a core process is alive
func (b *StatusBoard) SetRunning(running bool) {
	b.isRunning.Store(running)
}

// SetRunningConfig records the tag of the configuration being run
func (b *StatusBoard) SetRunningConfig(tag string) {
	b.mu.Lock()
	b.runningConfig = tag
	b.mu.Unlock()
}

// SetCoreVersion records the version reported by the core binary
func (b *StatusBoard) SetCoreVersion(version string) {
	b.mu.Lock()
	b.coreVersion = version
	b.mu.Unlock()
}

// SetTraffic records the connection count and cumulative traffic totals
func (b *StatusBoard) SetTraffic(connections, upload, download uint64) {
	b.connectionCount.Store(connections)
	b.uploadTraffic.Store(upload)
	b.downloadTraffic.Store(download)
}

// SetSpeed records the instantaneous transfer rates in bytes per second
func (b *StatusBoard) SetSpeed(upload, download uint64) {
	b.uploadSpeed.Store(upload)
	b.downloadSpeed.Store(download)
}

// SetMemory records the core's memory in use in bytes
func (b *StatusBoard) SetMemory(inuse uint64) {
	b.memoryUsage.Store(inuse)
}

// ResetMetrics zeroes every numeric field, leaving the running flag and strings alone
func (b *StatusBoard) ResetMetrics() {
	b.memoryUsage.Store(0)
	b.connectionCount.Store(0)
	b.uploadTraffic.Store(0)
	b.downloadTraffic.Store(0)
	b.uploadSpeed.Store(0)
	b.downloadSpeed.Store(0)
}

// notifier is a broadcast signal: wait hands out the current channel and
// broadcast closes it and installs a fresh one.
type notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func (n *notifier) wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch == nil {
		n.ch = make(chan struct{})
	}
	return n.ch
}

func (n *notifier) broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil {
		close(n.ch)
	}
	n.ch = make(chan struct{})
}
