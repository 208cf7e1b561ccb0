package session

import (
	"sync"
)

// requestKind identifies the type of in-flight request.
type requestKind int

const (
	requestConnect requestKind = iota
	requestSubscribe
)

func (k requestKind) String() string {
	switch k {
	case requestConnect:
		return "connect"
	case requestSubscribe:
		return "subscribe"
	default:
		return "unknown"
	}
}

// pendingHandle is the retained completion pair of one in-flight request.
type pendingHandle struct {
	id        uint64
	kind      requestKind
	onSuccess func()
	onFailure func(reason string)
}

// pendingTable owns completion handles from the moment a request is issued
// until its first completion.
type pendingTable struct {
	mu      sync.Mutex
	handles map[uint64]*pendingHandle
	nextID  uint64
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		handles: make(map[uint64]*pendingHandle),
		nextID:  1,
	}
}

// insert registers a handle. Only one request of each kind may be pending.
func (pt *pendingTable) insert(kind requestKind, onSuccess func(), onFailure func(string)) (*pendingHandle, error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	for _, h := range pt.handles {
		if h.kind == kind {
			return nil, ErrRequestPending
		}
	}

	h := &pendingHandle{
		id:        pt.nextID,
		kind:      kind,
		onSuccess: onSuccess,
		onFailure: onFailure,
	}
	pt.nextID++
	pt.handles[h.id] = h
	return h, nil
}

// take removes and returns the handle. Only the first call for an id succeeds.
func (pt *pendingTable) take(id uint64) (*pendingHandle, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	h, ok := pt.handles[id]
	if ok {
		delete(pt.handles, id)
	}
	return h, ok
}

func (pt *pendingTable) count() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return len(pt.handles)
}
