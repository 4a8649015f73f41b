// Package lifecycle governs the buffer processing state machine.
//
// A staged sample moves through conversion, analysis (at the gateway or
// the server), transfer (likewise), backup, and finally deletion. Error
// is reachable from every non-terminal status and is itself
// non-terminal: a retry returns the entry to the status that was being
// attempted when the failure occurred. Delete is the only terminal
// status and the only one from which an entry disappears.
//
// The legality of an edge is decided here; the atomic commit of a
// transition happens in the store with compare-and-swap discipline.
package lifecycle

import (
	"fmt"

	"github.com/xtxerr/depot/internal/errors"
)

// =============================================================================
// Status
// =============================================================================

// Status is the processing state of one buffer entry.
type Status int

const (
	// StatusDefault is the initial status of a freshly staged sample.
	StatusDefault Status = iota
	// StatusConvert marks an entry waiting for payload conversion.
	StatusConvert
	// StatusAnalyzeGateway marks an entry handed to gateway-side analysis.
	StatusAnalyzeGateway
	// StatusAnalyzeServer marks an entry handed to server-side analysis.
	StatusAnalyzeServer
	// StatusTransferGateway marks an entry queued for gateway transfer.
	StatusTransferGateway
	// StatusTransferServer marks an entry queued for server transfer.
	StatusTransferServer
	// StatusBackup marks an entry waiting for archival.
	StatusBackup
	// StatusDelete is the terminal disposition; committing it removes
	// the entry.
	StatusDelete
	// StatusError parks an entry after a failed stage. Entries in Error
	// are never auto-deleted; they stay inspectable until retried.
	StatusError
)

// String returns the canonical string form stored in the database.
func (s Status) String() string {
	switch s {
	case StatusDefault:
		return "default"
	case StatusConvert:
		return "convert"
	case StatusAnalyzeGateway:
		return "analyze_gateway"
	case StatusAnalyzeServer:
		return "analyze_server"
	case StatusTransferGateway:
		return "transfer_gateway"
	case StatusTransferServer:
		return "transfer_server"
	case StatusBackup:
		return "backup"
	case StatusDelete:
		return "delete"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseStatus parses the string form of a status.
func ParseStatus(s string) (Status, error) {
	for st := StatusDefault; st <= StatusError; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("status %q: %w", s, errors.ErrInvalidState)
}

// IsTerminal reports whether the status ends the lifecycle. Only Delete
// is terminal; Error is a parking state, not an end state.
func (s Status) IsTerminal() bool {
	return s == StatusDelete
}

// =============================================================================
// Legal Edges
// =============================================================================

// edges lists the legal forward transitions. Error edges are handled
// separately: every non-terminal status may enter Error, and Error may
// return to any status recorded as the retry target.
var edges = map[Status][]Status{
	StatusDefault:         {StatusConvert},
	StatusConvert:         {StatusAnalyzeGateway, StatusAnalyzeServer},
	StatusAnalyzeGateway:  {StatusTransferGateway, StatusTransferServer},
	StatusAnalyzeServer:   {StatusTransferGateway, StatusTransferServer},
	StatusTransferGateway: {StatusBackup},
	StatusTransferServer:  {StatusBackup},
	StatusBackup:          {StatusDelete},
	StatusDelete:          nil,
	StatusError:           nil, // retry targets computed by RetryTarget
}

// CanAdvance reports whether from -> to is a legal edge.
func CanAdvance(from, to Status) bool {
	if from == to {
		return false
	}
	// Any non-terminal status may fail into Error.
	if to == StatusError {
		return !from.IsTerminal() && from != StatusError
	}
	if from == StatusError {
		// Error leaves only through the recorded retry target.
		return !to.IsTerminal() && to != StatusError
	}
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next returns the legal successor statuses of from, excluding Error.
func Next(from Status) []Status {
	return edges[from]
}

// ValidateTransition returns ErrInvalidTransition if from -> to is not
// a legal edge. The entry's status is never touched on failure.
func ValidateTransition(from, to Status) error {
	if !CanAdvance(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, errors.ErrInvalidTransition)
	}
	return nil
}

// RetryTarget resolves where a retry out of Error should land: the
// status that was being attempted when the entry failed, or Default
// when the recorded target is unknown or not retryable.
func RetryTarget(recorded Status, known bool) Status {
	if !known || recorded == StatusError || recorded.IsTerminal() {
		return StatusDefault
	}
	return recorded
}

// Stages returns every non-terminal working status in pipeline order.
// Used by the worker manager to spin up one pool per stage.
func Stages() []Status {
	return []Status{
		StatusDefault,
		StatusConvert,
		StatusAnalyzeGateway,
		StatusAnalyzeServer,
		StatusTransferGateway,
		StatusTransferServer,
		StatusBackup,
	}
}
