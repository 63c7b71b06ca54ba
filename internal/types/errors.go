package types

// NotFoundError signals missing records.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " " + e.Key + " not found"
}

// ConflictError signals concurrent modification or duplicate creation attempts.
type ConflictError struct {
	Resource string
	Key      string
	Hint     string
}

func (e *ConflictError) Error() string {
	msg := e.Resource + " " + e.Key + " conflicts with existing state"
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

// ForbiddenError signals a role or ownership violation.
type ForbiddenError struct {
	Action string
	Reason string
}

func (e *ForbiddenError) Error() string {
	if e.Reason == "" {
		return e.Action + " is not allowed"
	}
	return e.Action + " is not allowed: " + e.Reason
}

// ValidationError represents invalid input supplied by clients. Messages holds
// every problem found when several are collected at once (archive import).
type ValidationError struct {
	Message  string
	Messages []string
}

func (e *ValidationError) Error() string {
	return e.Message
}
