package model

import (
	"time"

	"gorm.io/datatypes"
)

// Community roles: looking for a room or offering one
const (
	RoleBusco   = "BUSCO"
	RoleOfrezco = "OFREZCO"
)

const (
	MaxCommunityPhotos = 6
	MaxCommunityTags   = 10
)

// CommunityProfile is a user's roommate matching profile. Photos holds
// object keys in the community-images bucket.
type CommunityProfile struct {
	ID           uint                        `json:"id" gorm:"primaryKey"`
	UserID       uint                        `json:"userId" gorm:"uniqueIndex;not null"`
	Role         string                      `json:"role" gorm:"type:varchar(10);index;not null"`
	City         string                      `json:"city" gorm:"type:varchar(100);index;not null"`
	Neighborhood string                      `json:"neighborhood" gorm:"type:varchar(100)"`
	BudgetMin    int                         `json:"budgetMin" gorm:"not null"`
	BudgetMax    int                         `json:"budgetMax" gorm:"not null"`
	Bio          string                      `json:"bio" gorm:"type:text"`
	Age          *int                        `json:"age,omitempty"`
	Photos       datatypes.JSONSlice[string] `json:"-"`
	Tags         datatypes.JSONSlice[string] `json:"tags"`
	IsSuspended  bool                        `json:"isSuspended" gorm:"index;not null"`
	IsPaid       bool                        `json:"isPaid" gorm:"not null"`
	PaidUntil    *time.Time                  `json:"paidUntil,omitempty"`
	CreatedAt    time.Time                   `json:"createdAt"`
	UpdatedAt    time.Time                   `json:"updatedAt"`
}

// CompatibleRoles reports whether a and b can be matched
func CompatibleRoles(a, b string) bool {
	return (a == RoleBusco && b == RoleOfrezco) || (a == RoleOfrezco && b == RoleBusco)
}

// CommunityLike is a directed like between two users
type CommunityLike struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	FromUserID uint      `json:"fromUserId" gorm:"uniqueIndex:idx_like_pair;not null"`
	ToUserID   uint      `json:"toUserId" gorm:"uniqueIndex:idx_like_pair;index;not null"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Match statuses
const (
	MatchActive   = "active"
	MatchArchived = "archived"
	MatchBlocked  = "blocked"
)

// CommunityMatch pairs two users. User1ID is always the smaller id.
type CommunityMatch struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	User1ID       uint       `json:"user1Id" gorm:"uniqueIndex:idx_match_pair;not null"`
	User2ID       uint       `json:"user2Id" gorm:"uniqueIndex:idx_match_pair;index;not null"`
	Status        string     `json:"status" gorm:"type:varchar(20);index;not null"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// OrderedPair returns a and b with the smaller first
func OrderedPair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// Involves reports whether userID is one side of the match
func (m CommunityMatch) Involves(userID uint) bool {
	return m.User1ID == userID || m.User2ID == userID
}

// Other returns the participant that is not userID
func (m CommunityMatch) Other(userID uint) uint {
	if m.User1ID == userID {
		return m.User2ID
	}
	return m.User1ID
}
