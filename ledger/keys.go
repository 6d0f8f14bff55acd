package ledger

import (
	"fmt"
	"strings"
)

// DefaultPrefix is the key namespace used when a job does not set one.
const DefaultPrefix = "fanout"

// Keys builds the state store keys for one job.
type Keys struct {
	prefix string
}

// NewKeys returns the key layout for prefix, falling back to DefaultPrefix.
func NewKeys(prefix string) Keys {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Keys{prefix: prefix}
}

// Prefix returns the job's key prefix.
func (k Keys) Prefix() string {
	return k.prefix
}

// Launch returns the ledger key of a slot.
func (k Keys) Launch(slotIndex int) string {
	return fmt.Sprintf("%s/ledger/%d", k.prefix, slotIndex)
}

// Status returns the status table key of a launch handle.
func (k Keys) Status(handle string) string {
	return fmt.Sprintf("%s/status/%s", k.prefix, handle)
}

// Report returns the key of the final job report.
func (k Keys) Report() string {
	return k.prefix + "/report"
}
