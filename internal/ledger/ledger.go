package ledger

import (
	"container/list"
	"sync"

	"github.com/sentinelops/sentinel-pipeline/internal/models"
)

// Ledger holds the ordered incident state for the dashboard: most-recent-first,
// unique by id, with O(1) lookup and O(1) move-to-front. Incidents are never
// removed; archival is a status value. A single RWMutex keeps snapshots from
// observing a half-applied merge.
type Ledger struct {
	mu    sync.RWMutex
	order *list.List
	byID  map[string]*list.Element
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		order: list.New(),
		byID:  make(map[string]*list.Element),
	}
}

// Upsert merges the incident at the front of the ledger. An existing entry
// with the same id is replaced and moved to the front, so the list never
// carries stale duplicates.
func (l *Ledger) Upsert(incident models.Incident) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.byID[incident.ID]; ok {
		elem.Value = incident
		l.order.MoveToFront(elem)
		return
	}
	l.byID[incident.ID] = l.order.PushFront(incident)
}

// Get returns the incident with the given id.
func (l *Ledger) Get(id string) (models.Incident, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	elem, ok := l.byID[id]
	if !ok {
		return models.Incident{}, false
	}
	return elem.Value.(models.Incident), true
}

// SetStatus replaces the status of the matching incident in place, preserving
// its position. Returns false when the id is unknown. Transitions are
// deliberately unrestricted, matching the permissive dashboard contract.
func (l *Ledger) SetStatus(id string, status models.Status) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.byID[id]
	if !ok {
		return false
	}
	incident := elem.Value.(models.Incident)
	incident.Status = status
	elem.Value = incident
	return true
}

// SetAnalysis attaches out-of-band tactical analysis to the matching incident.
func (l *Ledger) SetAnalysis(id, analysis string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.byID[id]
	if !ok {
		return false
	}
	incident := elem.Value.(models.Incident)
	incident.TacticalAnalysis = analysis
	elem.Value = incident
	return true
}

// Snapshot returns the incidents in order, most recent first.
func (l *Ledger) Snapshot() []models.Incident {
	l.mu.RLock()
	defer l.mu.RUnlock()

	incidents := make([]models.Incident, 0, l.order.Len())
	for elem := l.order.Front(); elem != nil; elem = elem.Next() {
		incidents = append(incidents, elem.Value.(models.Incident))
	}
	return incidents
}

// Len reports the number of incidents held.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.order.Len()
}
