package testutil

import (
	"context"
	"sync"

	"github.com/dalemusser/shopdesk/internal/app/invitation"
)

// RecordingNotifier captures invitation notices. Set Err to make every send
// fail after recording.
type RecordingNotifier struct {
	mu      sync.Mutex
	notices []invitation.Notice
	Err     error
}

func (n *RecordingNotifier) SendInvite(_ context.Context, notice invitation.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.Err
}

// Notices returns a copy of the recorded notices.
func (n *RecordingNotifier) Notices() []invitation.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]invitation.Notice(nil), n.notices...)
}

// Last returns the most recent notice. ok is false if none was sent.
func (n *RecordingNotifier) Last() (invitation.Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		return invitation.Notice{}, false
	}
	return n.notices[len(n.notices)-1], true
}
