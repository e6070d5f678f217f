package domain

import "time"

// Idempotency records the response of a previously processed interaction,
// keyed by (user_id, target, key). Chat platforms redeliver button presses and
// form submissions; a redelivery carrying the same key is answered from this
// record without running the lifecycle again.
//
// Target is the case id for claim/resolve and the literal "submit" for new
// requests. Response holds the JSON body originally returned.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_target_key,priority:1"`
	Target    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_target_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_target_key,priority:3"`
	CaseID    string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	Response  string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
