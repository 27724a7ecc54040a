// ABOUTME: Client-side id minting for entities that never get a server id
// ABOUTME: Prefixed ULIDs keep ids sortable and visibly distinct from server ids
package models

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// LocalIDPrefix marks outreach records that failed to sync and exist only in
// the local store.
const LocalIDPrefix = "local-"

// MintID returns a prefixed, time-ordered id for a locally-created entity,
// e.g. "opp-01hq3...". Prefixes: local, opp, deal, note, task.
func MintID(prefix string) string {
	return prefix + "-" + strings.ToLower(ulid.Make().String())
}

// IsLocalID reports whether an outreach id was minted as a sync fallback.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}
