package mil1553

import "github.com/GoAethereal/cancel"

// cancelMutex behaves like sync.Mutex, except a lock attempt can be
// aborted by a canceled cancel.Context instead of blocking forever.
// Adapted from the teacher's connection-guarding mutex: there it
// guarded a shared network.network handle between concurrent
// requests/listeners; here it guards a BusController's shared Bus
// handle so a caller's ctx can cut short a SendTransfer/SendModeCommand
// call that is merely waiting its turn, not one that is mid-transaction
// on the wire.
type cancelMutex chan struct{}

func newCancelMutex() cancelMutex {
	m := make(cancelMutex, 1)
	m <- struct{}{}
	return m
}

func (mu cancelMutex) lock(ctx cancel.Context) error {
	select {
	case <-ctx.Done():
		return ErrCanceled
	case <-mu:
		return nil
	}
}

func (mu cancelMutex) unlock() {
	mu <- struct{}{}
}
