package model

import "time"

// Conversation is a two party thread. Participants are stored ordered.
type Conversation struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	User1ID       uint       `json:"user1Id" gorm:"index:idx_conversation_pair;not null"`
	User2ID       uint       `json:"user2Id" gorm:"index:idx_conversation_pair;index;not null"`
	PropertyID    *uint      `json:"propertyId,omitempty" gorm:"index"`
	MatchID       *uint      `json:"matchId,omitempty" gorm:"uniqueIndex"`
	IsActive      bool       `json:"isActive" gorm:"not null"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty" gorm:"index"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Involves reports whether userID takes part in the conversation
func (c Conversation) Involves(userID uint) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Other returns the participant that is not userID
func (c Conversation) Other(userID uint) uint {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// Message is one entry of a conversation
type Message struct {
	ID             uint                `json:"id" gorm:"primaryKey"`
	ConversationID uint                `json:"conversation_id" gorm:"index;not null"`
	SenderID       uint                `json:"sender_id" gorm:"index;not null"`
	Content        string              `json:"content" gorm:"type:text;not null"`
	ReadAt         *time.Time          `json:"read_at"`
	CreatedAt      time.Time           `json:"created_at"`
	Attachments    []MessageAttachment `json:"attachments" gorm:"foreignKey:MessageID"`
}

// MessageAttachment is an uploaded file. MessageID stays nil until the file
// is linked to a sent message.
type MessageAttachment struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ConversationID uint      `json:"conversationId" gorm:"index;not null"`
	MessageID      *uint     `json:"messageId,omitempty" gorm:"index"`
	UploaderID     uint      `json:"uploaderId" gorm:"index;not null"`
	FileName       string    `json:"fileName" gorm:"type:varchar(255);not null"`
	MimeType       string    `json:"mimeType" gorm:"type:varchar(150);not null"`
	SizeBytes      int64     `json:"size" gorm:"not null"`
	Width          *int      `json:"width,omitempty"`
	Height         *int      `json:"height,omitempty"`
	StorageKey     string    `json:"-" gorm:"type:varchar(500);not null"`
	SHA256         string    `json:"-" gorm:"type:char(64)"`
	CreatedAt      time.Time `json:"createdAt" gorm:"index"`
}
