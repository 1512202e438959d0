package models

import "time"

// RepairRun is one reconciliation pass, kept in PostgreSQL as an audit trail.
type RepairRun struct {
	ID                  uint      `json:"id" gorm:"primaryKey"`
	StartedAt           time.Time `json:"startedAt" gorm:"index"`
	FinishedAt          time.Time `json:"finishedAt"`
	DryRun              bool      `json:"dryRun"`
	Aborted             bool      `json:"aborted"`
	UsersScanned        int       `json:"usersScanned"`
	UsersCorrected      int       `json:"usersCorrected"`
	DanglingRefsRemoved int       `json:"danglingRefsRemoved"`
	CountersCorrected   int       `json:"countersCorrected"`
	ItemsScanned        int       `json:"itemsScanned"`
	ItemsCorrected      int       `json:"itemsCorrected"`
	OrphansDeleted      int       `json:"orphansDeleted"`
	Error               string    `json:"error,omitempty" gorm:"type:text"`
}
