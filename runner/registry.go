package runner

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rustyeddy/gradebot/position"
)

// Entry is one live position. Stuck marks a position whose exit order failed
// every attempt; it stays registered so the instrument is not bought again,
// and the scan loop retries its exit each cycle.
type Entry struct {
	Machine *position.Machine
	Stuck   bool
}

// Registry is the set of live positions keyed by instrument.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

func (r *Registry) Add(m *position.Machine) (*Entry, error) {
	instr := m.Position().Instrument
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[instr]; ok {
		return nil, fmt.Errorf("position on %s already open", instr)
	}
	e := &Entry{Machine: m}
	r.entries[instr] = e
	return e, nil
}

func (r *Registry) Remove(instr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, instr)
}

func (r *Registry) MarkStuck(instr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[instr]; ok {
		e.Stuck = true
	}
}

// Stuck lists the entries whose exit is still pending, sorted by instrument.
func (r *Registry) Stuck() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Entry
	for _, e := range r.entries {
		if e.Stuck {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Machine.Position().Instrument < out[j].Machine.Position().Instrument
	})
	return out
}

func (r *Registry) Get(instr string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[instr]
	return e, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Held lists the registered instruments in sorted order.
func (r *Registry) Held() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Exposure is the entry notional of every registered position.
func (r *Registry) Exposure() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum float64
	for _, e := range r.entries {
		sum += e.Machine.Position().Notional
	}
	return sum
}

// Positions returns a copy of every registered position.
func (r *Registry) Positions() []position.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]position.Position, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Machine.Position())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

func (r *Registry) entriesCopy() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}
