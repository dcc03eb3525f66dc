package relations

import (
	"sort"
	"strings"
	"sync"

	"smfoperator/pkg/core"
)

// requiredKeys lists the fields a remote unit must publish before its snapshot is usable.
var requiredKeys = map[core.RelationKind][]string{
	core.RelationNRF:          {core.KeyNRFURL},
	core.RelationCertificates: {core.KeyCertificate},
	core.RelationSdcoreConfig: {core.KeyWebuiURL},
	core.RelationDatabase:     {core.KeyDatabaseURIs},
	core.RelationLogging:      {core.KeyLokiURL},
}

// Store holds the latest snapshot published by every remote unit of every relation.
// It never blocks on I/O and never reports missing data as an error.
type Store struct {
	mu     sync.RWMutex
	joined map[core.RelationKind]map[string]core.RelationSnapshot
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{joined: map[core.RelationKind]map[string]core.RelationSnapshot{}}
}

// Join marks a relation as established even if no unit has published data yet.
func (s *Store) Join(kind core.RelationKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.joined[kind]; !ok {
		s.joined[kind] = map[string]core.RelationSnapshot{}
	}
}

// Put replaces the snapshot for (Kind, RemoteUnit) and reports whether anything changed.
func (s *Store) Put(snapshot core.RelationSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	units, ok := s.joined[snapshot.Kind]
	if !ok {
		units = map[string]core.RelationSnapshot{}
		s.joined[snapshot.Kind] = units
	}
	if previous, exists := units[snapshot.RemoteUnit]; exists && previous.Equal(snapshot) {
		return false
	}
	units[snapshot.RemoteUnit] = copySnapshot(snapshot)
	return true
}

// RemoveUnit drops one remote unit; the relation stays joined.
func (s *Store) RemoveUnit(kind core.RelationKind, remoteUnit string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	units, ok := s.joined[kind]
	if !ok {
		return false
	}
	if _, exists := units[remoteUnit]; !exists {
		return false
	}
	delete(units, remoteUnit)
	return true
}

// Remove forgets the relation entirely.
func (s *Store) Remove(kind core.RelationKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.joined[kind]; !ok {
		return false
	}
	delete(s.joined, kind)
	return true
}

// Joined reports whether the relation exists, with or without data.
func (s *Store) Joined(kind core.RelationKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.joined[kind]
	return ok
}

// Kinds returns the joined relation kinds in sorted order.
func (s *Store) Kinds() []core.RelationKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kinds := make([]core.RelationKind, 0, len(s.joined))
	for kind := range s.joined {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Units returns every stored snapshot of kind ordered by remote unit.
func (s *Store) Units(kind core.RelationKind) []core.RelationSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedUnits(s.joined[kind])
}

// Get returns the snapshot used for kind: the complete snapshot of the lowest remote unit id.
// It is absent when the relation is not joined or no unit published the required fields.
func (s *Store) Get(kind core.RelationKind) (core.RelationSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return selectComplete(s.joined[kind])
}

// Snapshot freezes the current contents into a View for one reconciliation pass.
func (s *Store) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := View{
		joined:    make(map[core.RelationKind]bool, len(s.joined)),
		snapshots: make(map[core.RelationKind]core.RelationSnapshot, len(s.joined)),
	}
	for kind, units := range s.joined {
		view.joined[kind] = true
		if snapshot, ok := selectComplete(units); ok {
			view.snapshots[kind] = copySnapshot(snapshot)
		}
	}
	return view
}

func selectComplete(units map[string]core.RelationSnapshot) (core.RelationSnapshot, bool) {
	for _, snapshot := range sortedUnits(units) {
		if Complete(snapshot) {
			return snapshot, true
		}
	}
	return core.RelationSnapshot{}, false
}

// Complete reports whether the snapshot carries every required field for its kind.
func Complete(snapshot core.RelationSnapshot) bool {
	for _, key := range requiredKeys[snapshot.Kind] {
		if strings.TrimSpace(snapshot.Data[key]) == "" {
			return false
		}
	}
	return true
}

func sortedUnits(units map[string]core.RelationSnapshot) []core.RelationSnapshot {
	ids := make([]string, 0, len(units))
	for id := range units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return lessUnit(ids[i], ids[j]) })

	out := make([]core.RelationSnapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, copySnapshot(units[id]))
	}
	return out
}

// lessUnit orders unit ids like "nrf/2" before "nrf/10".
func lessUnit(a, b string) bool {
	aName, aNum, aOK := splitUnit(a)
	bName, bNum, bOK := splitUnit(b)
	if aOK && bOK && aName == bName {
		return aNum < bNum
	}
	return a < b
}

func splitUnit(unit string) (string, int, bool) {
	idx := strings.LastIndexByte(unit, '/')
	if idx < 0 || idx == len(unit)-1 {
		return unit, 0, false
	}
	number := 0
	for _, r := range unit[idx+1:] {
		if r < '0' || r > '9' {
			return unit, 0, false
		}
		number = number*10 + int(r-'0')
	}
	return unit[:idx], number, true
}

func copySnapshot(snapshot core.RelationSnapshot) core.RelationSnapshot {
	data := make(map[string]string, len(snapshot.Data))
	for key, value := range snapshot.Data {
		data[key] = value
	}
	snapshot.Data = data
	return snapshot
}
