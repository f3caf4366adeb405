// Package xid mints identifiers for salon records. IDs carry a record-kind
// prefix ("sale", "commpay", "cust") so a bare ID in a log line is
// self-describing.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const entropyBytes = 8

// New returns "<prefix>-<unix nanos>-<random hex>". The timestamp keeps IDs
// roughly sortable by creation time; the random tail disambiguates records
// minted in the same nanosecond.
func New(prefix string) string {
	buf := make([]byte, entropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
