package chat

import (
	"context"
	"time"
)

// reapLoop expires idle sessions on a fixed interval. Expiry goes through
// the same Logout path as an explicit client request, so presence side
// effects are identical. Scan failures are logged and the loop continues.
func (m *Manager) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(m.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapOnce()
		}
	}
}

// reapOnce runs a single scan. Split out so tests can drive expiry without
// waiting on the ticker.
func (m *Manager) reapOnce() {
	for _, id := range m.registry.Idle(m.idleTimeout) {
		if err := m.Logout(id); err != nil {
			m.log.Warn().Err(err).Str("session_id", id).Msg("expiring idle session")
			continue
		}
		m.log.Info().Str("session_id", id).Msg("session expired for inactivity")
	}
}
