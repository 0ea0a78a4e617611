package deps

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Known is the set of packages already available in the workspace.
type Known struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewKnown returns a set seeded with names.
func NewKnown(names ...string) *Known {
	k := &Known{names: make(map[string]struct{}, len(names))}
	k.Add(names...)
	return k
}

// Add records names as installed.
func (k *Known) Add(names ...string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, n := range names {
		if n != "" {
			k.names[n] = struct{}{}
		}
	}
}

// Has reports whether name is known.
func (k *Known) Has(name string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.names[name]
	return ok
}

// Names returns the known set sorted.
func (k *Known) Names() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return sortedKeys(k.names)
}

type packageManifest struct {
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// AddManifest adds every dependency declared in a package.json document.
func (k *Known) AddManifest(content string) error {
	var m packageManifest
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return fmt.Errorf("parse package.json: %w", err)
	}
	for _, group := range []map[string]string{m.Dependencies, m.DevDependencies, m.PeerDependencies} {
		for name := range group {
			k.Add(name)
		}
	}
	return nil
}

// Missing returns the sorted union of the packages imported by code and the
// extra names reported by the generator, minus everything already known.
func Missing(code string, extra []string, known *Known, p Policy) []string {
	set := make(map[string]struct{})
	for _, name := range Collect(code, p) {
		set[name] = struct{}{}
	}
	for _, spec := range extra {
		if name, ok := p.Package(spec); ok {
			set[name] = struct{}{}
		}
	}
	if known != nil {
		for name := range set {
			if known.Has(name) {
				delete(set, name)
			}
		}
	}
	return sortedKeys(set)
}
