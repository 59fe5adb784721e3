package relay

import "sync/atomic"

// stats are the manager's relay counters.
type stats struct {
	framesReceived  atomic.Int64
	framesDropped   atomic.Int64
	connectFailures atomic.Int64
	eventsSent      atomic.Int64
}

// Stats is a point-in-time copy of the relay counters.
type Stats struct {
	Relays          int
	OpenConnections int
	FramesReceived  int64
	FramesDropped   int64
	ConnectFailures int64
	EventsSent      int64
}

// Stats returns current connection pool statistics
func (m *Manager) Stats() Stats {
	s := Stats{
		FramesReceived:  m.stats.framesReceived.Load(),
		FramesDropped:   m.stats.framesDropped.Load(),
		ConnectFailures: m.stats.connectFailures.Load(),
		EventsSent:      m.stats.eventsSent.Load(),
	}
	m.conns.Range(func(_ string, c *Connection) bool {
		s.Relays++
		if c.IsOpen() {
			s.OpenConnections++
		}
		return true
	})
	return s
}
