package download

// validTransitions defines allowed state transitions.
// Key is the "from" status, value is list of valid "to" statuses.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusMatched, StatusUnmatched, StatusCompleted, StatusError},
	StatusMatched:    {StatusProcessing},
	StatusUnmatched:  {StatusProcessing}, // retry
	StatusError:      {StatusProcessing}, // retry
	StatusCompleted:  {StatusProcessing}, // forced reprocess
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s Status) CanTransitionTo(target Status) bool {
	valid, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, v := range valid {
		if v == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if processing has finished, successfully or not.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusMatched, StatusUnmatched, StatusCompleted, StatusError:
		return true
	}
	return false
}

// IsActive returns true while the download's files may still be claimed by
// an in-flight match.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusProcessing
}
