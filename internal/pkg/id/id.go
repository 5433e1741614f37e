package id

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// New generates a ULID for the current instant.
func New() string { return NewAt(time.Now()) }

// NewAt generates a ULID whose timestamp component is t. Services pass their own
// clock so row ids sort consistently with created_at.
func NewAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}
