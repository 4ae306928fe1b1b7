// package reg keeps the transfer sessions of the server, one per peer address.
package reg

import (
	"github.com/hetianyi/gox"
	"github.com/hetianyi/gox/logger"
	"github.com/hetianyi/gox/timer"
	"net"
	"sort"
	"sync"
	"time"
)

// Registry is the exclusive owner of sessions.
//
// The reactor loop is the only writer. The lock is held because the
// status api takes snapshots from its own goroutines.
type Registry struct {
	lock     *sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		lock:     new(sync.Mutex),
		sessions: make(map[string]*Session),
	}
}

// RegisterIfAbsent returns the session of addr, creating it if there is none.
// The boolean is true when a new session was created.
func (r *Registry) RegisterIfAbsent(addr net.Addr) (*Session, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	key := addr.String()
	if s := r.sessions[key]; s != nil {
		return s, false
	}
	s := NewSession(addr)
	r.sessions[key] = s
	logger.Debug("registered session ", s.Id, " for ", key)
	return s, true
}

// Lookup returns the session of addr, nil means no active transfer.
func (r *Registry) Lookup(addr net.Addr) *Session {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.sessions[addr.String()]
}

// Deregister removes the session of addr and releases its store handles.
func (r *Registry) Deregister(addr net.Addr) {
	r.lock.Lock()
	defer r.lock.Unlock()
	key := addr.String()
	s := r.sessions[key]
	if s == nil {
		return
	}
	s.Release()
	delete(r.sessions, key)
	logger.Debug("deregistered session ", s.Id, " for ", key)
}

// Expired returns the sessions whose retransmission deadline has passed.
func (r *Registry) Expired(now time.Time) []*Session {
	r.lock.Lock()
	defer r.lock.Unlock()
	var ret []*Session
	for _, s := range r.sessions {
		if s.Expired(now) {
			ret = append(ret, s)
		}
	}
	return ret
}

// Snapshot takes a snapshot of current sessions, oldest first.
func (r *Registry) Snapshot() []SessionInfo {
	r.lock.Lock()
	defer r.lock.Unlock()
	ret := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		ret = append(ret, s.Info())
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].StartTime < ret[j].StartTime
	})
	return ret
}

func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.sessions)
}

// StartReporter starts a timer job logging the number of active sessions.
func (r *Registry) StartReporter(interval time.Duration) {
	timer.Start(0, interval, 0, func(t *timer.Timer) {
		gox.Try(func() {
			logger.Debug("current sessions: ", r.Len())
		}, func(e interface{}) {
			logger.Error("session report err: ", e)
		})
	})
}
