package models

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// IncidentType enumerates report categories.
type IncidentType string

const (
	TypeFire    IncidentType = "FIRE"
	TypeMedical IncidentType = "MEDICAL"
	TypePolice  IncidentType = "POLICE"
	TypeTraffic IncidentType = "TRAFFIC"
	TypeUtility IncidentType = "UTILITY"
	TypeOther   IncidentType = "OTHER"
)

// Severity captures impact levels.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityMajor    Severity = "MAJOR"
	SeverityMinor    Severity = "MINOR"
)

// Status tracks an incident through its dispatch lifecycle. Transitions are
// permissive: the ledger replaces whatever status it is handed.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusDispatched Status = "DISPATCHED"
	StatusSolved     Status = "SOLVED"
	StatusError      Status = "ERROR"
)

// Coordinates locates an incident on the dashboard map.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GroundingSource is a citation attached to a classification result.
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Incident is the canonical unit flowing through the pipeline. ID and
// Timestamp are immutable after creation; only Status and TacticalAnalysis
// change afterwards.
type Incident struct {
	ID               string            `json:"id"`
	Timestamp        time.Time         `json:"timestamp"`
	Summary          string            `json:"summary"`
	Type             IncidentType      `json:"type"`
	Severity         Severity          `json:"severity"`
	PriorityScore    int               `json:"priority_score"`
	Coords           Coordinates       `json:"coords"`
	Status           Status            `json:"status"`
	ProcessingMS     int64             `json:"processing_latency_ms,omitempty"`
	GroundingSources []GroundingSource `json:"grounding_sources,omitempty"`
	TacticalAnalysis string            `json:"tactical_analysis,omitempty"`
}

// WithStatus derives a copy carrying the new status, leaving the receiver
// untouched.
func (i Incident) WithStatus(status Status) Incident {
	i.Status = status
	return i
}

// ClampPriority bounds a raw model-produced score into [1,10].
func ClampPriority(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewIncidentID returns an id of the form INC-XXXXXX with a 6-character
// uppercase base36 suffix.
func NewIncidentID() string {
	var b strings.Builder
	b.WriteString("INC-")
	max := big.NewInt(int64(len(base36Alphabet)))
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken;
			// fall back to a timestamp-derived character.
			n = big.NewInt(time.Now().UnixNano() % int64(len(base36Alphabet)))
		}
		b.WriteByte(base36Alphabet[n.Int64()])
	}
	return b.String()
}

// NewErrorIncidentID returns an id of the form ERR-<base36 unix-ms upper>,
// used for synthesized fallback incidents.
func NewErrorIncidentID(at time.Time) string {
	return "ERR-" + strings.ToUpper(strconv.FormatInt(at.UnixMilli(), 36))
}
