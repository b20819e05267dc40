package resource

import (
	"context"
	"fmt"
	"sync"
)

// ExhaustedError is fatal for a job and surfaced before any work starts:
// the shared temp-storage quota cannot cover the job's estimate.
type ExhaustedError struct {
	Need int64
	Free int64
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("temp storage exhausted: need %d bytes, %d free", e.Need, e.Free)
}

// Manager is the only process-wide resource: a bounded job pool plus a
// bounded temp-storage quota shared across concurrent jobs. It is passed
// explicitly, never ambient.
type Manager struct {
	jobs chan struct{}

	mu    sync.Mutex
	quota int64
	used  int64
}

func NewManager(jobConcurrency int, tempQuotaBytes int64) *Manager {
	if jobConcurrency < 1 {
		jobConcurrency = 1
	}
	return &Manager{
		jobs:  make(chan struct{}, jobConcurrency),
		quota: tempQuotaBytes,
	}
}

// AcquireJob blocks for a worker-pool slot. The returned release function
// is safe to call once on any exit path.
func (m *Manager) AcquireJob(ctx context.Context) (func(), error) {
	select {
	case m.jobs <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-m.jobs }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AcquireTemp reserves temp-storage bytes for one job. It never blocks: a
// reservation that does not fit fails immediately with ExhaustedError.
func (m *Manager) AcquireTemp(bytes int64) (*TempLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	free := m.quota - m.used
	if bytes > free {
		return nil, &ExhaustedError{Need: bytes, Free: free}
	}
	m.used += bytes
	return &TempLease{mgr: m, bytes: bytes}, nil
}

// TempUsed reports the currently reserved bytes.
func (m *Manager) TempUsed() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// TempLease is a scoped temp-storage reservation.
type TempLease struct {
	mgr   *Manager
	bytes int64
	once  sync.Once
}

// Release returns the reservation to the shared quota. Idempotent.
func (l *TempLease) Release() {
	l.once.Do(func() {
		l.mgr.mu.Lock()
		l.mgr.used -= l.bytes
		l.mgr.mu.Unlock()
	})
}
