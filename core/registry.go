package core

import (
	"sort"
	"sync"
)

// slot is the state of a single registered name.
type slot struct {
	entry  Entry
	state  State
	flight *flight

	// transient slots are created for names which are not
	// registered but importable, and are removed again if the
	// import fails.
	transient bool
}

// Registry maps names to entries, and owns every value resolved
// from them. It is safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]*slot)}
}

// Set stores or overwrites the entry of name.
//
// An overwritten name that is being resolved keeps resolving,
// but its outcome is no longer cached under the name.
func (r *Registry) Set(name string, entry Entry) error {
	if name == "" {
		return ErrInvalidName
	}
	state := Unresolved
	if entry.Kind == KindValue {
		state = Resolved
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[name] = &slot{entry: entry, state: state}
	return nil
}

// Lookup returns the entry of name and its state.
func (r *Registry) Lookup(name string) (Entry, State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[name]
	if !ok {
		return Entry{}, Unresolved, false
	}
	return s.entry, s.state, true
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// EntryInfo describes a registered name.
type EntryInfo struct {
	Name  string
	Entry Entry
	State State
}

// Entries returns every registered name sorted by name.
func (r *Registry) Entries() []EntryInfo {
	r.mu.Lock()
	result := make([]EntryInfo, 0, len(r.slots))
	for name, s := range r.slots {
		result = append(result, EntryInfo{
			Name:  name,
			Entry: s.entry,
			State: s.state,
		})
	}
	r.mu.Unlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// ticket is the outcome of acquiring a name. Exactly one of
// resolved, own and join is set.
type ticket struct {
	resolved bool
	value    interface{}

	// own is set when the caller must resolve entry and then
	// either commit or abort the flight.
	own   *flight
	slot  *slot
	entry Entry

	// join is set when the caller must wait for another flight
	// and then release it.
	join *flight
}

// acquire transitions name towards resolution on behalf of the
// parent flight (nil for a top-level caller).
//
// A resolved name is returned directly. An unresolved name moves
// to Resolving and the caller owns the new flight. A name which
// is already resolving may be joined by asynchronous callers
// unless doing so would wait on the caller itself.
func (r *Registry) acquire(
	name string, parent *flight, async, importable bool,
) (ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[name]
	if !ok {
		if !importable {
			return ticket{}, ErrDependencyNotFound
		}
		s = &slot{entry: FileEntry(name), transient: true}
		r.slots[name] = s
	}
	switch s.state {
	case Resolved:
		return ticket{resolved: true, value: s.entry.Value}, nil
	case Resolving:
		if parent != nil && s.flight.reaches(parent) {
			return ticket{}, ErrCyclicResolution
		}
		if !async {
			return ticket{}, ErrSyncResolutionBlocked
		}
		parent.wait(s.flight)
		return ticket{join: s.flight}, nil
	}
	f := newFlight(name)
	s.state = Resolving
	s.flight = f
	parent.wait(f)
	return ticket{own: f, slot: s, entry: s.entry}, nil
}

// commit caches the value produced by the owner of a flight.
func (r *Registry) commit(
	name string, t ticket, parent *flight, value interface{},
) {
	r.mu.Lock()
	if s := t.slot; s.flight == t.own {
		s.flight = nil
		if r.slots[name] == s {
			s.entry = ValueEntry(value)
			s.state = Resolved
			s.transient = false
		}
	}
	parent.unwait(t.own)
	r.mu.Unlock()
	t.own.future.complete(value, nil)
}

// abort restores the pre-resolution state of a failed flight.
func (r *Registry) abort(
	name string, t ticket, parent *flight, err error,
) {
	r.mu.Lock()
	if s := t.slot; s.flight == t.own {
		s.flight = nil
		s.state = Unresolved
		if s.transient && r.slots[name] == s {
			delete(r.slots, name)
		}
	}
	parent.unwait(t.own)
	r.mu.Unlock()
	t.own.future.complete(nil, err)
}

// release drops the wait edge of a joined flight.
func (r *Registry) release(parent, joined *flight) {
	r.mu.Lock()
	defer r.mu.Unlock()
	parent.unwait(joined)
}
