package domain

import (
	"strings"
	"time"
)

// IdentityKind says how a row is recognised across re-imports.
type IdentityKind string

const (
	// IdentityBySourceID rows carry the export's own record id and are
	// authoritative: a re-import updates them.
	IdentityBySourceID IdentityKind = "source"
	// IdentityByNaturalKey rows come from uploads without ids. They are
	// recognised by a composite of their fields.
	IdentityByNaturalKey IdentityKind = "natural"
)

// Identity is the dedup identity of an output row. Key is what lands in the
// unique dedup_key column.
type Identity struct {
	Kind IdentityKind
	Key  string
}

func BySourceID(entity, id string) Identity {
	return Identity{Kind: IdentityBySourceID, Key: entity + ":" + strings.TrimSpace(id)}
}

// ByNaturalKey joins the normalised fields with a unit separator so that
// ("a b", "c") and ("a", "b c") never collide.
func ByNaturalKey(entity string, fields ...string) Identity {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = strings.ToLower(strings.TrimSpace(f))
	}
	return Identity{Kind: IdentityByNaturalKey, Key: "natural:" + entity + ":" + strings.Join(parts, "\x1f")}
}

// IdentityFor prefers the source id and falls back to the natural key.
func IdentityFor(entity, sourceID string, natural ...string) Identity {
	if strings.TrimSpace(sourceID) != "" {
		return BySourceID(entity, sourceID)
	}
	return ByNaturalKey(entity, natural...)
}

// KeyTime renders a timestamp for use inside a natural key.
func KeyTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
