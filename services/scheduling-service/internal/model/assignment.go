package model

import "time"

// Assignment binds a resource (for example a nutrition plan) to a subject.
// At most one assignment per subject is Active.
type Assignment struct {
	ID            string
	SubjectID     string
	ResourceID    string
	Active        bool
	CreatedAt     time.Time
	DeactivatedAt *time.Time
}
