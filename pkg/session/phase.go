package session

import "context"

// phase is one broadcast generation. Starting a new phase cancels the
// previous one's context; the sender loops watch that context and exit
// cooperatively, so a loop runs at most one tick past its supersession.
type phase struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// newPhase mints a phase chained to the session's root context.
func newPhase(parent context.Context) *phase {
	ctx, cancel := context.WithCancel(parent)
	return &phase{ctx: ctx, cancel: cancel}
}

func (p *phase) stop() {
	if p != nil {
		p.cancel()
	}
}
