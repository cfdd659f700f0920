package agent

import "github.com/google/uuid"

// newID generates a prefixed unique identifier for chat items, speech
// handles and turns, grounded on the pack's common use of
// github.com/google/uuid for exactly this purpose.
func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
