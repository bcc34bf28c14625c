package matching

import "github.com/blackout-hub/blackout/internal/domain/participant"

// PreferencesCompatible reports whether a and b accept each other's gender.
// Both directions must pass; pairs that fail are never scored.
func PreferencesCompatible(a, b *participant.Participant) bool {
	return a.Preference.Accepts(b.Gender) && b.Preference.Accepts(a.Gender)
}
