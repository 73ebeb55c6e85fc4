package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusAbsent    Status = "absent"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusAbsent, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbsent || s == StatusCancelled
}

// AuditNote is appended to an appointment on every transition and never edited.
type AuditNote struct {
	At    time.Time `json:"at"`
	Actor string    `json:"actor"`
	Text  string    `json:"text"`
}

type Appointment struct {
	ID             string
	OwnerID        string
	SubjectID      string
	SubjectContact string
	Date           Date
	Start          Minute
	Status         Status
	// TokenDigest is what is stored; CancellationToken is only populated on
	// the record returned by Book and Reschedule.
	TokenDigest       []byte
	CancellationToken string
	Reason            string
	Notes             string
	Outcome           string
	Audit             []AuditNote
	RescheduledFrom   string
	RescheduledTo     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SlotKey identifies the (owner, date, time) unit an appointment occupies.
func (a Appointment) SlotKey() string {
	return SlotKey(a.OwnerID, a.Date, a.Start)
}

func SlotKey(ownerID string, d Date, m Minute) string {
	return "slot:" + ownerID + ":" + d.String() + ":" + m.String()
}

// Clone returns a copy that shares no slices with a.
func (a Appointment) Clone() Appointment {
	a.TokenDigest = append([]byte(nil), a.TokenDigest...)
	a.Audit = append([]AuditNote(nil), a.Audit...)
	return a
}
