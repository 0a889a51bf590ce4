// Package xid issues prefixed, time-ordered identifiers for new rows.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns an id like "prd-1693465200123456789-9f2c1a0b4d6e8a31".
// Ids from the same process sort roughly by creation time.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// rand failing is effectively fatal elsewhere; the timestamp
		// alone still gives a usable, if weaker, identifier.
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
