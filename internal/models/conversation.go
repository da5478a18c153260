package models

import "time"

// Conversation is a match between two users. The pair is stored with the
// smaller user ID first so that a pair maps to exactly one row.
type Conversation struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	User1ID       uint       `gorm:"not null;uniqueIndex:idx_match_pair" json:"user1_id"`
	User2ID       uint       `gorm:"not null;uniqueIndex:idx_match_pair;index" json:"user2_id"`
	IsActive      bool       `gorm:"not null;index" json:"is_active"`
	MatchedAt     time.Time  `json:"matched_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

func (Conversation) TableName() string {
	return "matches"
}

// CanonicalPair orders two user IDs the way they are stored
func CanonicalPair(a, b uint) (uint, uint) {
	if a <= b {
		return a, b
	}
	return b, a
}

// Includes reports whether userID is one of the two participants
func (c *Conversation) Includes(userID uint) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Counterpart returns the other participant
func (c *Conversation) Counterpart(userID uint) uint {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}
