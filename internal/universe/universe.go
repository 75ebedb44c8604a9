// Package universe defines the execution universe that every component in
// market-watch operates under, and the isolation rules around it.
package universe

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Universe is the execution universe defining authority and semantics.
// These are separate realities, not modes: a result from one universe
// must never be conflated with results from another.
type Universe string

const (
	// Live trades real capital through live broker endpoints.
	Live Universe = "live"
	// Paper trades through broker-mediated paper accounts under real market hours.
	Paper Universe = "paper"
	// Simulation runs against a synthetic or replayed broker, any time of day.
	Simulation Universe = "simulation"
)

// String implements fmt.Stringer.
func (u Universe) String() string { return string(u) }

// IsRealCapital reports whether u has irreversible financial consequences.
func (u Universe) IsRealCapital() bool { return u == Live }

// AllowsMarketHoursOverride reports whether u may trade outside real market hours.
func (u Universe) AllowsMarketHoursOverride() bool { return u == Simulation }

// RequiresExplicitConfirmation reports whether u requires an explicit
// operator confirmation flag before it may run.
func (u Universe) RequiresExplicitConfirmation() bool { return u == Live }

// DefaultValidityClass returns the default validity class for metrics
// recorded from this universe.
func (u Universe) DefaultValidityClass() string {
	switch u {
	case Live:
		return "LIVE_VERIFIED"
	case Paper:
		return "PAPER_ONLY"
	default:
		return "SIM_VALID_FOR_TRAINING"
	}
}

// Valid reports whether u is one of the three known universes.
func (u Universe) Valid() bool {
	switch u {
	case Live, Paper, Simulation:
		return true
	default:
		return false
	}
}

// ParseUniverse parses a universe from a case-insensitive string.
func ParseUniverse(value string) (Universe, error) {
	u := Universe(strings.ToLower(strings.TrimSpace(value)))
	if !u.Valid() {
		return "", fmt.Errorf("invalid universe %q: must be one of live, paper, simulation", value)
	}
	return u, nil
}

// Context is an immutable, session-scoped carrier of universe information.
// Every execution-affecting path receives a Context rather than inferring
// its universe some other way.
type Context struct {
	universe      Universe
	sessionID     string
	createdAt     time.Time
	dataLineageID string
	validityClass string
}

// NewContext constructs a Context for universe u. sessionID is generated
// when empty; dataLineageID is optional.
func NewContext(u Universe, sessionID, dataLineageID string) (*Context, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("universe: cannot build context for invalid universe %q", u)
	}
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	return &Context{
		universe:      u,
		sessionID:     sessionID,
		createdAt:     time.Now().UTC(),
		dataLineageID: dataLineageID,
		validityClass: u.DefaultValidityClass(),
	}, nil
}

func generateSessionID() string {
	return fmt.Sprintf("session_%s_%s", time.Now().UTC().Format("20060102_150405"), uuid.New().String()[:8])
}

// Universe returns the context's universe.
func (c *Context) Universe() Universe { return c.universe }

// SessionID returns the context's session identifier.
func (c *Context) SessionID() string { return c.sessionID }

// CreatedAt returns when the context was constructed.
func (c *Context) CreatedAt() time.Time { return c.createdAt }

// DataLineageID returns the optional data provenance identifier.
func (c *Context) DataLineageID() string { return c.dataLineageID }

// ValidityClass returns the default validity class for metrics from this context.
func (c *Context) ValidityClass() string { return c.validityClass }

// DataPath returns the universe-scoped data path for filename, e.g.
// "data/live/config.json".
func (c *Context) DataPath(filename string) string {
	return DataPath(c.universe, filename)
}

// LogPath returns the universe-scoped log path for filename, e.g.
// "logs/live/trades.jsonl".
func (c *Context) LogPath(filename string) string {
	return LogPath(c.universe, filename)
}

// DataPath returns the universe-scoped data path for filename.
func DataPath(u Universe, filename string) string {
	return fmt.Sprintf("data/%s/%s", u, filename)
}

// LogPath returns the universe-scoped log path for filename.
func LogPath(u Universe, filename string) string {
	return fmt.Sprintf("logs/%s/%s", u, filename)
}

// SharedDataPath returns the universe-agnostic shared data path for
// filename. Only meant for truly universe-agnostic data (symbol metadata,
// historical cache, static reference data).
func SharedDataPath(filename string) string {
	return fmt.Sprintf("data/shared/%s", filename)
}

// Transition describes an audited, destructive universe transition.
type Transition struct {
	FromUniverse Universe  `json:"from_universe"`
	ToUniverse   Universe  `json:"to_universe"`
	Reason       string    `json:"reason"`
	Timestamp    time.Time `json:"timestamp"`
	TransitionID string    `json:"transition_id"`
	Warning      string    `json:"warning"`
}

// ValidateUniverseTransition validates a proposed universe transition and
// returns its audit metadata. Transitions are never in-place toggles: the
// caller is expected to tear down and rebuild every universe-bound
// component using the returned metadata for its audit log.
func ValidateUniverseTransition(from, to Universe, reason string) (Transition, error) {
	if from == to {
		return Transition{}, fmt.Errorf("universe: cannot transition to same universe %q", from)
	}
	return Transition{
		FromUniverse: from,
		ToUniverse:   to,
		Reason:       reason,
		Timestamp:    time.Now().UTC(),
		TransitionID: uuid.New().String(),
		Warning:      "this is a destructive transition requiring teardown and rebuild",
	}, nil
}
