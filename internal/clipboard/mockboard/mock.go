// Package mockboard provides a mock clipboard implementation for testing.
package mockboard

import "sync"

// MockClipboard implements clipboard.Clipboard in memory.
type MockClipboard struct {
	mu          sync.Mutex
	data        string
	unsupported bool
	writeErr    error
	writes      int
}

// New creates a new MockClipboard instance
func New() *MockClipboard {
	return &MockClipboard{}
}

// WriteText implements Clipboard.WriteText for MockClipboard
func (m *MockClipboard) WriteText(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.data = text
	m.writes++
	return nil
}

// ReadText implements Clipboard.ReadText for MockClipboard
func (m *MockClipboard) ReadText() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

// IsSupported is true unless SetSupported(false) was called.
func (m *MockClipboard) IsSupported() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unsupported
}

// SetSupported toggles IsSupported.
func (m *MockClipboard) SetSupported(ok bool) {
	m.mu.Lock()
	m.unsupported = !ok
	m.mu.Unlock()
}

// FailWrites makes every later WriteText return err.
func (m *MockClipboard) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Writes returns the number of successful writes.
func (m *MockClipboard) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
