package types

import "time"

// Certification states a ship event moves through. The certification
// process itself is external; this service only observes the field.
const (
	CertPending  = "pending"
	CertApproved = "approved"
	CertRejected = "rejected"
)

// Voters
type Voter struct {
	ID           uint64 `gorm:"primaryKey"`
	Handle       string `gorm:"size:64;uniqueIndex;not null"`
	Admin        bool   `gorm:"default:false"`
	SummaryOptIn bool   `gorm:"default:false"`
	SpamLockedAt *time.Time
	CreatedAt    time.Time
}

// Projects
type Project struct {
	ID        uint64 `gorm:"primaryKey"`
	OwnerID   uint64 `gorm:"index;not null"`
	Name      string `gorm:"size:255;not null"`
	Fire      bool   `gorm:"default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Members   []ProjectMember `gorm:"foreignKey:ProjectID"`
}

// Project members (contributors beyond the owner)
type ProjectMember struct {
	ProjectID uint64  `gorm:"primaryKey"`
	VoterID   uint64  `gorm:"primaryKey"`
	Role      string  `gorm:"size:32"`
	Project   Project `gorm:"foreignKey:ProjectID"`
}

// Ship events (milestone claims)
type ShipEvent struct {
	ID                  uint64 `gorm:"primaryKey"`
	ProjectID           uint64 `gorm:"index;not null"`
	Title               string `gorm:"size:255"`
	CertificationStatus string `gorm:"size:16;not null;default:pending;index"`
	VotesCount          uint32 `gorm:"not null;default:0"`
	Hours               float64
	Payout              *float64 // write-once; set by the payout calculator
	Multiplier          *float64 // audit record of the rate applied
	PaidAt              *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Project             Project `gorm:"foreignKey:ProjectID"`
}

// Votes. (voter, ship event) is unique; project id is denormalized so the
// spam detector and matchmaker never join through ship_events.
type Vote struct {
	ID             uint64 `gorm:"primaryKey"`
	VoterID        uint64 `gorm:"not null;uniqueIndex:idx_voter_ship"`
	ShipEventID    uint64 `gorm:"not null;uniqueIndex:idx_voter_ship"`
	ProjectID      uint64 `gorm:"index;not null"`
	Originality    int    `gorm:"not null"`
	Technical      int    `gorm:"not null"`
	Usability      int    `gorm:"not null"`
	Storytelling   int    `gorm:"not null"`
	Reason         string `gorm:"type:text"`
	DemoClicked    bool   `gorm:"default:false"`
	RepoClicked    bool   `gorm:"default:false"`
	DecisionTimeMs uint32 `gorm:"default:0"`
	Suspicious     bool   `gorm:"default:false;index"`
	CreatedAt      time.Time
	Voter          Voter     `gorm:"foreignKey:VoterID"`
	ShipEvent      ShipEvent `gorm:"foreignKey:ShipEventID"`
}

// Ledger entries credited to a voter's balance; the balance/shop side is a
// separate consumer.
type LedgerEntry struct {
	ID            uint64 `gorm:"primaryKey"`
	BeneficiaryID uint64 `gorm:"index;not null"`
	SourceType    string `gorm:"size:32;not null"` // e.g. ship_event
	SourceID      uint64 `gorm:"index;not null"`
	Tickets       float64
	Memo          string `gorm:"size:255"`
	CreatedAt     time.Time
}

func (v Vote) Scores() [4]int {
	return [4]int{v.Originality, v.Technical, v.Usability, v.Storytelling}
}
