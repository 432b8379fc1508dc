package job

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a job or a step. The zero value is
// NOT_STARTED.
type Status int

const (
	StatusNotStarted Status = iota
	StatusInProgress
	StatusSuccess
	StatusFailure
	StatusUnknown
)

var statusNames = [...]string{"NOT_STARTED", "IN_PROGRESS", "SUCCESS", "FAILURE", "UNKNOWN"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if strings.EqualFold(name, string(text)) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// rank orders statuses for best-job selection: SUCCESS above IN_PROGRESS
// above everything else.
func (s Status) rank() int {
	switch s {
	case StatusSuccess:
		return 2
	case StatusInProgress:
		return 1
	default:
		return 0
	}
}
