package session

import "context"

// Generation returns the current session generation.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// RenewFrom runs a renewal as a caller that observed generation gen.
func (m *Manager) RenewFrom(ctx context.Context, gen uint64) (string, error) {
	return m.refresh(ctx, gen)
}
