package statesync

// Status is the fetch status of a query entry.
type Status uint8

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MutationStatus is the status of a Mutation.
type MutationStatus uint8

const (
	MutationIdle MutationStatus = iota
	MutationPending
	MutationSuccess
	MutationError
)

func (s MutationStatus) String() string {
	switch s {
	case MutationIdle:
		return "idle"
	case MutationPending:
		return "pending"
	case MutationSuccess:
		return "success"
	case MutationError:
		return "error"
	default:
		return "unknown"
	}
}

// Ordering decides which completion wins when fetches for one key overlap.
type Ordering uint8

const (
	// LastResolved applies every completion in the order it arrives. A fetch
	// issued earlier but resolving later overwrites a newer result.
	LastResolved Ordering = iota
	// LastIssued drops a completion if a fetch issued after it has already
	// been applied.
	LastIssued
)
