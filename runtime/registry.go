package runtime

import (
	"chat-sync/contract"
	"sync"
)

type viewSet map[contract.View]struct{}

// Registry tracks the views each user currently has open.
type Registry struct {
	mu    sync.RWMutex
	views map[string]viewSet // map user -> open views
}

func NewRegistry() *Registry {
	return &Registry{views: make(map[string]viewSet)}
}

// Add registers an open view for userID.
func (r *Registry) Add(userID string, view contract.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.views[userID]; !ok {
		r.views[userID] = make(viewSet)
	}
	r.views[userID][view] = struct{}{}
}

// Remove forgets a view and drops the user entry once empty,
// so the map never grows with users who closed everything.
func (r *Registry) Remove(userID string, view contract.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.views[userID]; ok {
		delete(set, view)
		if len(set) == 0 {
			delete(r.views, userID)
		}
	}
}

// ViewsFor returns the open views of userID.
func (r *Registry) ViewsFor(userID string) []contract.View {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var views []contract.View
	for view := range r.views[userID] {
		views = append(views, view)
	}
	return views
}

// Count is the number of open views across users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, set := range r.views {
		n += len(set)
	}
	return n
}

// Drain empties the registry and returns what was still open, per user.
func (r *Registry) Drain() map[string][]contract.View {
	r.mu.Lock()
	defer r.mu.Unlock()

	drained := make(map[string][]contract.View, len(r.views))
	for userID, set := range r.views {
		for view := range set {
			drained[userID] = append(drained[userID], view)
		}
	}
	r.views = make(map[string]viewSet)
	return drained
}
