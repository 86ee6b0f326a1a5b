package pathcopy

import (
	"fmt"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Outcome classifies a single file attempt.
type Outcome int

const (
	// OK means the file was copied.
	OK Outcome = iota
	// Ineligible means an exclusion rule applies. It is not an error.
	Ineligible
	// AlreadyBackedUp means the target carries the source's modification time.
	AlreadyBackedUp
	// WriteInProgress means the source changed within the quiescence window.
	WriteInProgress
	// Exception is any other I/O failure, for example a sharing violation.
	Exception
	// PathTooLong means the resolved path exceeds the platform limit.
	PathTooLong
)

var outcomeToString = map[Outcome]string{
	OK:              "OK",
	Ineligible:      "Ineligible",
	AlreadyBackedUp: "AlreadyBackedUp",
	WriteInProgress: "WriteInProgress",
	Exception:       "Exception",
	PathTooLong:     "PathTooLong",
}
var stringToOutcome map[string]Outcome

func init() {
	stringToOutcome = util.InvertMap(outcomeToString)
}

// String returns the string representation of an Outcome.
func (o Outcome) String() string {
	if str, ok := outcomeToString[o]; ok {
		return str
	}
	return fmt.Sprintf("unknown_outcome(%d)", o)
}

// ParseOutcome returns the Outcome for its exact string name.
func ParseOutcome(s string) (Outcome, bool) {
	o, ok := stringToOutcome[s]
	return o, ok
}

// Retryable reports whether another attempt later in the run may succeed.
// PathTooLong is structural and never retryable.
func (o Outcome) Retryable() bool {
	return o == WriteInProgress || o == Exception
}

// IsFailure reports whether the outcome must be recorded as an error.
func (o Outcome) IsFailure() bool {
	return o == WriteInProgress || o == Exception || o == PathTooLong
}
