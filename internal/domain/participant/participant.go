// Package participant contains the read model of a matchmaking participant:
// identity, mutual-exclusion attributes, location and questionnaire answers.
// The profile itself is owned by the surrounding application; the matching
// engine only reads it for the duration of a cycle.
package participant

import (
	"math"
	"strings"
	"time"

	"github.com/blackout-hub/blackout/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ID is the participant identifier (UUID in the profile store).
type ID string

// IsValid reports whether the ID is non-empty and has no whitespace.
func (id ID) IsValid() bool {
	s := string(id)
	return s != "" && !strings.ContainsAny(s, " \t\n\r")
}

// String returns the raw identifier.
func (id ID) String() string {
	return string(id)
}

// Gender is the participant's declared gender. The zero value means
// the participant has not declared one.
type Gender string

const (
	GenderUnspecified Gender = ""
	GenderMale        Gender = "MALE"
	GenderFemale      Gender = "FEMALE"
	GenderNonBinary   Gender = "NON_BINARY"
)

// IsSet reports whether a gender was declared.
func (g Gender) IsSet() bool {
	return g != GenderUnspecified
}

// Preference is the gender a participant wants to be matched with.
// The zero value means no preference was declared.
type Preference string

const (
	PreferenceUnspecified Preference = ""
	PreferenceEveryone    Preference = "EVERYONE"
)

// IsSet reports whether a preference was declared.
func (p Preference) IsSet() bool {
	return p != PreferenceUnspecified
}

// Accepts reports whether this preference admits a partner of gender g.
// An unset preference, EVERYONE, or an undeclared partner gender always pass.
func (p Preference) Accepts(g Gender) bool {
	if !p.IsSet() || !g.IsSet() {
		return true
	}
	if p == PreferenceEveryone {
		return true
	}
	return string(p) == string(g)
}

// Status is the participant lifecycle status.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusPaused  Status = "PAUSED"
	StatusBanned  Status = "BANNED"
	StatusDeleted Status = "DELETED"
)

// Role separates regular participants from administrative accounts.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOCATION
// ══════════════════════════════════════════════════════════════════════════════

// Location is an optional geographic coordinate. Use SomeLocation or
// NoLocation to build one; the zero value is NoLocation.
type Location struct {
	lat   float64
	lon   float64
	known bool
}

// SomeLocation returns a known location. Out-of-range coordinates are
// rejected with ErrInvalidCoordinates.
func SomeLocation(lat, lon float64) (Location, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Location{}, shared.ErrInvalidCoordinates
	}
	return Location{lat: lat, lon: lon, known: true}, nil
}

// NoLocation returns an unknown location.
func NoLocation() Location {
	return Location{}
}

// Coordinates returns latitude and longitude, and whether they are known.
func (l Location) Coordinates() (lat, lon float64, ok bool) {
	return l.lat, l.lon, l.known
}

// IsKnown reports whether the location carries coordinates.
func (l Location) IsKnown() bool {
	return l.known
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT
// ══════════════════════════════════════════════════════════════════════════════

// Participant is the matching engine's view of one member of the pool.
type Participant struct {
	ID         ID
	Gender     Gender
	Preference Preference
	Location   Location
	JoinedAt   time.Time
	Status     Status
	Role       Role

	// Answers holds the questionnaire answers loaded for the cycle being run.
	Answers []Answer
}

// Eligible reports whether the participant may enter the weekly pool.
func (p *Participant) Eligible() bool {
	return p.Status == StatusActive && p.Role == RoleUser
}

// JoinedWithin reports whether the participant joined strictly after now-d.
func (p *Participant) JoinedWithin(d time.Duration, now time.Time) bool {
	return p.JoinedAt.After(now.Add(-d))
}
