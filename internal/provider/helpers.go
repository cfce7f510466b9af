package provider

import (
	"strconv"

	"github.com/google/uuid"
)

func itoa(n int) string { return strconv.Itoa(n) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// newSessionID mints an id for a fresh Provider C session when the caller
// doesn't supply a resume id; it is passed to the CLI as the
// "--session-id" flag on first use.
func newSessionID() string { return uuid.NewString() }
