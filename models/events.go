package models

// EventKind discriminates worker-to-orchestrator messages.
type EventKind int

const (
	EventCompleted EventKind = iota
	EventFailed
	EventStateDelta
)

func (k EventKind) String() string {
	switch k {
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventStateDelta:
		return "state_delta"
	default:
		return "unknown"
	}
}

// WorkerEvent is the only channel between a worker and the orchestrator.
// Workers never touch the shared snapshot directly.
type WorkerEvent struct {
	Kind         EventKind
	AccountIndex int
	Key          string
	State        LocalState
	Err          error
}

func CompletedEvent(accountIndex int) WorkerEvent {
	return WorkerEvent{Kind: EventCompleted, AccountIndex: accountIndex}
}

func FailedEvent(accountIndex int, err error) WorkerEvent {
	return WorkerEvent{Kind: EventFailed, AccountIndex: accountIndex, Err: err}
}

func DeltaEvent(accountIndex int, key string, state LocalState) WorkerEvent {
	return WorkerEvent{Kind: EventStateDelta, AccountIndex: accountIndex, Key: key, State: state}
}
