// Package sensors keeps the in-memory registry of OTP sensor states.
// The scan loop recomputes every state from scratch each tick and
// publishes it here; the registry owns all caching and diffing, readers
// never see a half-updated set.
package sensors

import (
	"sort"
	"sync"
)

// State is one published sensor: the current code plus the attributes
// the widget renders. It never contains the secret.
type State struct {
	Key           string `json:"key"`
	Code          string `json:"code"`
	EntryName     string `json:"entry_name"`
	Issuer        string `json:"issuer,omitempty"`
	Account       string `json:"account,omitempty"`
	URL           string `json:"url,omitempty"`
	TimeRemaining int    `json:"time_remaining"`
	Period        int    `json:"period"`
}

// Diff summarizes what one Publish call changed.
type Diff struct {
	Created int
	Updated int
	Removed int
}

type subscriber struct {
	userID string
	ch     chan []State
}

// Registry stores sensor states per user and vault. Keys are unique
// within one vault's publish; when two vaults of the same user produce
// the same key, the later publish owns it.
type Registry struct {
	mu sync.RWMutex
	// userID -> vaultID -> key -> state
	states map[string]map[string]map[string]State

	subMu   sync.Mutex
	subs    map[int]*subscriber
	nextSub int
}

func NewRegistry() *Registry {
	return &Registry{
		states: make(map[string]map[string]map[string]State),
		subs:   make(map[int]*subscriber),
	}
}

// Publish replaces the sensor set of one vault with fresh states and
// returns the diff against the previous set. Subscribers of the owning
// user receive the full updated snapshot.
func (r *Registry) Publish(userID, vaultID string, fresh []State) Diff {
	next := make(map[string]State, len(fresh))
	for _, s := range fresh {
		next[s.Key] = s
	}

	r.mu.Lock()
	vaultsByUser, ok := r.states[userID]
	if !ok {
		vaultsByUser = make(map[string]map[string]State)
		r.states[userID] = vaultsByUser
	}
	prev := vaultsByUser[vaultID]

	var d Diff
	for key, s := range next {
		old, existed := prev[key]
		switch {
		case !existed:
			d.Created++
		case old != s:
			d.Updated++
		}
	}
	for key := range prev {
		if _, kept := next[key]; !kept {
			d.Removed++
		}
	}

	vaultsByUser[vaultID] = next
	r.mu.Unlock()

	r.notify(userID)
	return d
}

// Drop removes all sensors of one vault, e.g. after the vault is
// deleted.
func (r *Registry) Drop(userID, vaultID string) {
	r.mu.Lock()
	if vaultsByUser, ok := r.states[userID]; ok {
		delete(vaultsByUser, vaultID)
	}
	r.mu.Unlock()

	r.notify(userID)
}

// List returns the user's sensors sorted by key.
func (r *Registry) List(userID string) []State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(userID)
}

// Get returns one sensor by key.
func (r *Registry) Get(userID, key string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, byKey := range r.states[userID] {
		if s, ok := byKey[key]; ok {
			return s, true
		}
	}
	return State{}, false
}

// Token returns the current code of one sensor, for the
// copy-to-clipboard action.
func (r *Registry) Token(userID, key string) (string, bool) {
	s, ok := r.Get(userID, key)
	if !ok {
		return "", false
	}
	return s.Code, true
}

// Subscribe registers a listener for the user's snapshots. Each Publish
// or Drop delivers the full current set; a slow listener misses
// intermediate snapshots instead of blocking the scan loop. Call the
// returned cancel func when done.
func (r *Registry) Subscribe(userID string) (<-chan []State, func()) {
	ch := make(chan []State, 1)

	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = &subscriber{userID: userID, ch: ch}
	r.subMu.Unlock()

	cancel := func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
	return ch, cancel
}

func (r *Registry) notify(userID string) {
	r.mu.RLock()
	snapshot := r.snapshotLocked(userID)
	r.mu.RUnlock()

	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, sub := range r.subs {
		if sub.userID != userID {
			continue
		}
		select {
		case sub.ch <- snapshot:
		default:
			// drop a stale snapshot the listener has not consumed yet
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snapshot:
			default:
			}
		}
	}
}

func (r *Registry) snapshotLocked(userID string) []State {
	var out []State
	for _, byKey := range r.states[userID] {
		for _, s := range byKey {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
