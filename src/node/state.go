package node

import (
	"sync"
	"sync/atomic"
	"time"
)

// State captures the state of the coordinator session: Disconnected,
// Connecting, Registering, Active, or Closing.
type State uint32

const (
	//Disconnected is the initial state, and the state between reconnects.
	Disconnected State = iota
	//Connecting is dialing the coordinator.
	Connecting
	//Registering has a transport and is waiting for the registration ack.
	Registering
	//Active is registered and serving work.
	Active
	//Closing is draining in-flight work before shutdown.
	Closing
)

// String ...
func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Registering:
		return "Registering"
	case Active:
		return "Active"
	case Closing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// WGLIMIT is the maximum number of goroutines that can be launched through
// state.goFunc
const WGLIMIT = 20

type state struct {
	state   State
	wg      sync.WaitGroup
	wgCount int32
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// Start a goroutine and add it to waitgroup. Returns false when the limit of
// in-flight goroutines is reached and f was not started; the caller decides
// what a dropped unit of work means.
func (b *state) goFunc(f func()) bool {
	tempWgCount := atomic.LoadInt32(&b.wgCount)
	if tempWgCount >= WGLIMIT {
		return false
	}
	b.wg.Add(1)
	atomic.AddInt32(&b.wgCount, 1)
	go func() {
		defer b.wg.Done()
		defer atomic.AddInt32(&b.wgCount, -1)
		f()
	}()
	return true
}

func (b *state) waitRoutines() {
	b.wg.Wait()
}

// waitRoutinesTimeout waits for the launched goroutines up to a bound.
// It returns false if the bound expired first.
func (b *state) waitRoutinesTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
