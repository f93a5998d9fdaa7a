package types

import "time"

type Status string

const (
	StatusInside Status = "inside"
	StatusExited Status = "exited"
)

// LogEntry is one vehicle visit. It is created inside by an approval and
// moves to history exactly once, when the vehicle exits.
type LogEntry struct {
	ID                  string     `json:"id"`
	LicensePlate        string     `json:"licensePlate"`
	NumPeople           int        `json:"numPeople"`
	Purpose             string     `json:"purpose"`
	ApprovedBy          string     `json:"approvedBy"`
	EntryTime           time.Time  `json:"entryTime"`
	ExitTime            *time.Time `json:"exitTime"` // nil while inside
	Status              Status     `json:"status"`
	SecurityPersonnelID string     `json:"securityPersonnelId"`
}

// Exited returns a copy of e transitioned to the exited state at t.
// t is clamped so exit never precedes entry.
func (e LogEntry) Exited(t time.Time) LogEntry {
	if t.Before(e.EntryTime) {
		t = e.EntryTime
	}
	out := e
	out.ExitTime = &t
	out.Status = StatusExited
	return out
}
