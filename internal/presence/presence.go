// Package presence tracks which usernames are online and how many
// connection instances (tabs, devices) each has. The registry is an
// injected service object; all mutation goes through its methods.
package presence

import "sync"

// Entry is the public view of one online username.
type Entry struct {
	Avatar    string   `json:"avatar,omitempty"`
	URL       string   `json:"url,omitempty"`
	Instances []string `json:"instances"`
}

// Registry maps usernames to presence entries. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Add records a connection instance under a username, creating the entry if
// none exists. Returns true when this is the username's first instance.
func (r *Registry) Add(username, avatar, url, instanceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[username]
	if !ok {
		e = &Entry{}
		r.entries[username] = e
	}
	if avatar != "" {
		e.Avatar = avatar
	}
	if url != "" {
		e.URL = url
	}
	e.Instances = append(e.Instances, instanceID)
	return !ok
}

// Remove drops a connection instance. The entry is deleted once its last
// instance is gone; the return value reports whether that happened.
func (r *Registry) Remove(username, instanceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[username]
	if !ok {
		return false
	}
	for i, id := range e.Instances {
		if id == instanceID {
			e.Instances = append(e.Instances[:i], e.Instances[i+1:]...)
			break
		}
	}
	if len(e.Instances) == 0 {
		delete(r.entries, username)
		return true
	}
	return false
}

// Rename atomically re-keys an entry when a connection transitions between
// guest and authenticated identity.
func (r *Registry) Rename(oldName, newName string) {
	if oldName == newName {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[oldName]; ok {
		r.entries[newName] = e
		delete(r.entries, oldName)
	}
}

// Update refreshes the profile fields on an existing entry.
func (r *Registry) Update(username, avatar, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[username]; ok {
		e.Avatar = avatar
		e.URL = url
	}
}

// List returns a snapshot copy of the registry.
func (r *Registry) List() map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Entry, len(r.entries))
	for name, e := range r.entries {
		instances := make([]string, len(e.Instances))
		copy(instances, e.Instances)
		out[name] = Entry{Avatar: e.Avatar, URL: e.URL, Instances: instances}
	}
	return out
}
