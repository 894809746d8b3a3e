package testutil

import "sync"

// MockProgressTracker records progress callbacks.
type MockProgressTracker struct {
	mu sync.Mutex

	Updates        []ProgressUpdate
	CompleteCalled bool
	LastError      error
}

// ProgressUpdate is a single Update call.
type ProgressUpdate struct {
	Transferred int64
	Total       int64
}

// Update records a progress update.
func (m *MockProgressTracker) Update(bytesTransferred, totalBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updates = append(m.Updates, ProgressUpdate{Transferred: bytesTransferred, Total: totalBytes})
}

// Complete marks the transfer complete.
func (m *MockProgressTracker) Complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteCalled = true
}

// Error records a failure.
func (m *MockProgressTracker) Error(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
}

// Last returns the most recent update.
func (m *MockProgressTracker) Last() ProgressUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Updates) == 0 {
		return ProgressUpdate{}
	}
	return m.Updates[len(m.Updates)-1]
}
