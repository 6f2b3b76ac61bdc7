package models

// TaskState tracks one candidate URL through the extraction phase.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskFetching
	TaskBlocked
	TaskFailed
	TaskExtracted
	TaskDone
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskFetching:
		return "fetching"
	case TaskBlocked:
		return "blocked"
	case TaskFailed:
		return "failed"
	case TaskExtracted:
		return "extracted"
	case TaskDone:
		return "done"
	default:
		return "unknown"
	}
}

var taskTransitions = map[TaskState][]TaskState{
	TaskPending:   {TaskFetching},
	TaskFetching:  {TaskBlocked, TaskFailed, TaskExtracted},
	TaskBlocked:   {TaskDone},
	TaskFailed:    {TaskDone},
	TaskExtracted: {TaskDone},
}

// CanTransition reports whether a task may move from s to next.
func (s TaskState) CanTransition(next TaskState) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is one of the outcome states.
func (s TaskState) Terminal() bool {
	return s == TaskBlocked || s == TaskFailed || s == TaskExtracted
}

// TaskResult is sent from a worker to the aggregator when a task finishes.
type TaskResult struct {
	Candidate CandidateURL
	State     TaskState
	Record    *ExtractionRecord
	Outcome   FetchOutcome
	Reason    string
	FromCache bool
}
