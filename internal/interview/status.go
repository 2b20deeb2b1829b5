package interview

import "fmt"

// Status is the lifecycle state of an interview session.
type Status int

// StatusUnknown marks a status the backend did not report.
const StatusUnknown Status = -1

const (
	StatusCreated Status = iota
	StatusReady
	StatusInProgress
	StatusPaused
	StatusCompleted
	StatusCancelled
	StatusAbandoned
)

var statusNames = map[Status]string{
	StatusCreated:    "created",
	StatusReady:      "ready",
	StatusInProgress: "in_progress",
	StatusPaused:     "paused",
	StatusCompleted:  "completed",
	StatusCancelled:  "cancelled",
	StatusAbandoned:  "abandoned",
}

// String returns the backend's name for the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// IsTerminal returns true for Completed, Cancelled and Abandoned.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusAbandoned
}

// IsActive returns true while the candidate can still be interviewed.
func (s Status) IsActive() bool {
	return !s.IsTerminal()
}

// ParseStatus accepts the backend's snake_case or upper-case names.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	switch name {
	case "CREATED":
		return StatusCreated, nil
	case "READY":
		return StatusReady, nil
	case "IN_PROGRESS":
		return StatusInProgress, nil
	case "PAUSED":
		return StatusPaused, nil
	case "COMPLETED":
		return StatusCompleted, nil
	case "CANCELLED":
		return StatusCancelled, nil
	case "ABANDONED":
		return StatusAbandoned, nil
	}
	return 0, fmt.Errorf("interview: unknown status %q", name)
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
