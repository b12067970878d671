package server

import "github.com/aegis-monitor/aegis/internal/models"

// mailbox holds at most one pending snapshot. A newer snapshot replaces an
// undelivered one, so a slow client never blocks the bridge fan-out.
type mailbox struct {
	ch chan models.Snapshot
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan models.Snapshot, 1)}
}

// put never blocks.
func (m *mailbox) put(s models.Snapshot) {
	for {
		select {
		case m.ch <- s:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}
