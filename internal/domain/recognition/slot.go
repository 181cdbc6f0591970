package recognition

import (
	"sort"
	"sync"
)

// ReleaseReason says why a slot let go of a response.
type ReleaseReason string

const (
	ReleaseReplaced ReleaseReason = "replaced"
	ReleaseStale    ReleaseReason = "stale"
	ReleaseCleared  ReleaseReason = "cleared"
)

// ReleaseEvent describes one response leaving a slot. Generation is the
// ticket the response was decoded under.
type ReleaseEvent struct {
	Reason     ReleaseReason
	Generation uint64
	Images     int
}

// ReleaseHook observes every response a slot releases, after the release.
// It runs under the slot lock and must not call back into the slot.
type ReleaseHook func(resp *Response, ev ReleaseEvent)

// Ticket marks the start of one decode. Tickets are ordered by issue time.
type Ticket struct {
	gen uint64
}

func (t Ticket) Generation() uint64 { return t.gen }

// Slot holds the current response of one client. Whatever leaves the slot is
// released while the slot lock is held, so an occupant is never released
// twice or left live after it is gone.
type Slot struct {
	mu        sync.Mutex
	issued    uint64
	installed uint64
	current   *Response
	hook      ReleaseHook
}

func NewSlot(hook ReleaseHook) *Slot {
	return &Slot{hook: hook}
}

// Begin issues a ticket for a decode that is about to start.
func (s *Slot) Begin() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return Ticket{gen: s.issued}
}

// Install puts resp in the slot unless a response from a later ticket is
// already installed, in which case resp is released and false is returned.
func (s *Slot) Install(t Ticket, resp *Response) bool {
	if resp == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t.gen <= s.installed {
		s.release(resp, ReleaseStale, t.gen)
		return false
	}
	old, oldGen := s.current, s.installed
	s.current = resp
	s.installed = t.gen
	if old != nil && old != resp {
		s.release(old, ReleaseReplaced, oldGen)
	}
	return true
}

// Replace installs resp unconditionally and returns the released previous occupant.
func (s *Slot) Replace(resp *Response) *Response {
	old, _ := s.swap(resp)
	return old
}

// Current returns the installed response, or nil.
func (s *Slot) Current() *Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Clear empties the slot and reports whether it held a response.
func (s *Slot) Clear() bool {
	old, _ := s.swap(nil)
	return old != nil
}

// Drain empties the slot and returns how many images it released.
func (s *Slot) Drain() int {
	_, n := s.swap(nil)
	return n
}

func (s *Slot) swap(resp *Response) (*Response, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldGen := s.installed
	s.issued++
	s.installed = s.issued
	old := s.current
	s.current = resp
	if old == nil || old == resp {
		return old, 0
	}
	reason := ReleaseReplaced
	if resp == nil {
		reason = ReleaseCleared
	}
	return old, s.release(old, reason, oldGen)
}

func (s *Slot) release(resp *Response, reason ReleaseReason, gen uint64) int {
	n := resp.Release()
	if s.hook != nil {
		s.hook(resp, ReleaseEvent{Reason: reason, Generation: gen, Images: n})
	}
	return n
}

// SessionSlots keeps one Slot per client id, created on first use.
type SessionSlots struct {
	mu    sync.Mutex
	slots map[string]*Slot
	hook  func(clientID string, resp *Response, ev ReleaseEvent)
}

func NewSessionSlots(hook func(clientID string, resp *Response, ev ReleaseEvent)) *SessionSlots {
	return &SessionSlots{
		slots: make(map[string]*Slot),
		hook:  hook,
	}
}

// Get returns the client's slot, creating it if needed.
func (s *SessionSlots) Get(clientID string) *Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[clientID]
	if !ok {
		var hook ReleaseHook
		if s.hook != nil {
			hook = func(resp *Response, ev ReleaseEvent) {
				s.hook(clientID, resp, ev)
			}
		}
		slot = NewSlot(hook)
		s.slots[clientID] = slot
	}
	return slot
}

// Lookup returns the client's slot without creating one.
func (s *SessionSlots) Lookup(clientID string) (*Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[clientID]
	return slot, ok
}

// Clients lists client ids with a slot, sorted.
func (s *SessionSlots) Clients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.slots))
	for id := range s.slots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReleaseAll clears every slot and returns the number of images released.
func (s *SessionSlots) ReleaseAll() int {
	s.mu.Lock()
	slots := make([]*Slot, 0, len(s.slots))
	for _, slot := range s.slots {
		slots = append(slots, slot)
	}
	s.mu.Unlock()

	released := 0
	for _, slot := range slots {
		released += slot.Drain()
	}
	return released
}
