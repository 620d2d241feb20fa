package chunk

import (
	"fmt"

	"github.com/google/uuid"
)

// ID derives the stable point identity for a chunk from its source id
// and position: a version-5 UUID in the URL namespace over
// "<source>:<index>". Identity is content-independent, so re-ingesting
// the same source overwrites its points instead of duplicating them.
func ID(sourceID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s:%d", sourceID, index))).String()
}

// IDs derives the identities for n consecutive chunks of one source.
func IDs(sourceID string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = ID(sourceID, i)
	}
	return ids
}
