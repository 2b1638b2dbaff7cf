package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/presence"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	MaxMessageLength    = 5000
	DefaultMessagesPage = 50
)

// AttachmentView is an attachment with a fresh signed URL
type AttachmentView struct {
	ID        uint      `json:"id"`
	FileName  string    `json:"fileName"`
	MimeType  string    `json:"mimeType"`
	Size      int64     `json:"size"`
	Width     *int      `json:"width,omitempty"`
	Height    *int      `json:"height,omitempty"`
	URL       string    `json:"url,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// MessageView is a message as returned to clients
type MessageView struct {
	ID          uint             `json:"id"`
	SenderID    uint             `json:"sender_id"`
	Content     string           `json:"content"`
	CreatedAt   time.Time        `json:"created_at"`
	ReadAt      *time.Time       `json:"read_at"`
	Attachments []AttachmentView `json:"attachments"`
}

// ThreadSummary is one entry of the inbox
type ThreadSummary struct {
	ID              uint         `json:"id"`
	PropertyID      *uint        `json:"propertyId,omitempty"`
	MatchID         *uint        `json:"matchId,omitempty"`
	OtherUser       *UserSummary `json:"otherUser"`
	OtherUserOnline bool         `json:"otherUserOnline"`
	LastMessage     *MessageView `json:"lastMessage"`
	UnreadCount     int64        `json:"unreadCount"`
	LastMessageAt   *time.Time   `json:"lastMessageAt"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// ThreadDetail is a conversation with one page of messages
type ThreadDetail struct {
	Thread    model.Conversation `json:"thread"`
	OtherUser *UserSummary       `json:"otherUser"`
	Messages  []MessageView      `json:"messages"`
	HasMore   bool               `json:"hasMore"`
}

// Messaging owns conversations and messages
type Messaging struct {
	db            *gorm.DB
	urls          *storage.URLBuilder
	notifier      *Notifier
	presence      *presence.Tracker
	attachmentTTL time.Duration
	now           func() time.Time
}

func NewMessaging(db *gorm.DB, urls *storage.URLBuilder, notifier *Notifier, tracker *presence.Tracker, attachmentTTL time.Duration) *Messaging {
	return &Messaging{
		db:            db,
		urls:          urls,
		notifier:      notifier,
		presence:      tracker,
		attachmentTTL: attachmentTTL,
		now:           time.Now,
	}
}

// participantThread loads an active conversation userID takes part in.
// Anything else is reported as not found.
func participantThread(ctx context.Context, db *gorm.DB, userID, threadID uint) (*model.Conversation, error) {
	var c model.Conversation
	if err := db.WithContext(ctx).Where("id = ? AND is_active = ?", threadID, true).First(&c).Error; err != nil {
		return nil, lookupErr(err, "thread")
	}
	if !c.Involves(userID) {
		return nil, apperr.NotFound("thread not found")
	}
	return &c, nil
}

func (m *Messaging) attachmentViews(ctx context.Context, rows []model.MessageAttachment) []AttachmentView {
	views := make([]AttachmentView, 0, len(rows))
	if len(rows) == 0 {
		return views
	}
	keys := make([]string, len(rows))
	for i, a := range rows {
		keys[i] = a.StorageKey
	}
	signed, failed := m.urls.SignedURLs(ctx, storage.BucketMessageAttachments, keys, m.attachmentTTL)
	for _, f := range failed {
		logger.FromContext(ctx).Warn("Failed to sign attachment URL", zap.String("key", f.Key), zap.String("error", f.Error))
	}
	byKey := make(map[string]storage.SignedURL, len(signed))
	for _, s := range signed {
		byKey[s.Key] = s
	}
	for _, a := range rows {
		view := toAttachmentView(a)
		if s, ok := byKey[a.StorageKey]; ok {
			view.URL, view.ExpiresAt = s.URL, s.ExpiresAt
		}
		views = append(views, view)
	}
	return views
}

func toAttachmentView(a model.MessageAttachment) AttachmentView {
	return AttachmentView{
		ID:       a.ID,
		FileName: a.FileName,
		MimeType: a.MimeType,
		Size:     a.SizeBytes,
		Width:    a.Width,
		Height:   a.Height,
	}
}

func (m *Messaging) messageView(ctx context.Context, msg model.Message) MessageView {
	return MessageView{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		CreatedAt:   msg.CreatedAt,
		ReadAt:      msg.ReadAt,
		Attachments: m.attachmentViews(ctx, msg.Attachments),
	}
}

// ListThreads returns userID's active conversations, latest activity first
func (m *Messaging) ListThreads(ctx context.Context, userID uint) ([]ThreadSummary, error) {
	var threads []model.Conversation
	if err := m.db.WithContext(ctx).
		Where("(user1_id = ? OR user2_id = ?) AND is_active = ?", userID, userID, true).
		Order("last_message_at IS NULL, last_message_at DESC, created_at DESC").
		Find(&threads).Error; err != nil {
		return nil, apperr.Internal("failed to load threads", err)
	}

	others := make([]uint, len(threads))
	for i, t := range threads {
		others[i] = t.Other(userID)
	}
	users, err := loadSummaries(ctx, m.db, others)
	if err != nil {
		return nil, apperr.Internal("failed to load users", err)
	}

	out := make([]ThreadSummary, 0, len(threads))
	for _, t := range threads {
		other := t.Other(userID)
		summary := ThreadSummary{
			ID:              t.ID,
			PropertyID:      t.PropertyID,
			MatchID:         t.MatchID,
			OtherUserOnline: m.presence.IsOnline(other),
			LastMessageAt:   t.LastMessageAt,
			CreatedAt:       t.CreatedAt,
		}
		if u, ok := users[other]; ok {
			summary.OtherUser = &u
		}

		var last model.Message
		err := m.db.WithContext(ctx).Preload("Attachments").
			Where("conversation_id = ?", t.ID).
			Order("created_at DESC, id DESC").
			Limit(1).Find(&last).Error
		if err != nil {
			return nil, apperr.Internal("failed to load last message", err)
		}
		if last.ID != 0 {
			view := m.messageView(ctx, last)
			summary.LastMessage = &view
		}

		if err := m.db.WithContext(ctx).Model(&model.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", t.ID, userID).
			Count(&summary.UnreadCount).Error; err != nil {
			return nil, apperr.Internal("failed to count unread messages", err)
		}
		out = append(out, summary)
	}
	return out, nil
}

// CreateThreadInput starts or reuses a conversation
type CreateThreadInput struct {
	RecipientID uint
	PropertyID  *uint
	Content     string
}

// CreateThread returns the existing thread for the pair and property or
// creates one. created reports which happened.
func (m *Messaging) CreateThread(ctx context.Context, callerID uint, in CreateThreadInput) (thread *model.Conversation, created bool, first *MessageView, err error) {
	if in.RecipientID == 0 {
		return nil, false, nil, apperr.BadRequest("recipientId is required")
	}
	if in.RecipientID == callerID {
		return nil, false, nil, apperr.BadRequest("you cannot message yourself")
	}
	var recipient model.User
	if err := m.db.WithContext(ctx).First(&recipient, in.RecipientID).Error; err != nil {
		return nil, false, nil, lookupErr(err, "recipient")
	}
	if in.PropertyID != nil {
		var property model.Property
		if err := m.db.WithContext(ctx).First(&property, *in.PropertyID).Error; err != nil {
			return nil, false, nil, lookupErr(err, "property")
		}
	}

	u1, u2 := model.OrderedPair(callerID, in.RecipientID)
	var existing model.Conversation
	q := m.db.WithContext(ctx).Where("user1_id = ? AND user2_id = ? AND is_active = ?", u1, u2, true)
	if in.PropertyID != nil {
		q = q.Where("property_id = ?", *in.PropertyID)
	} else {
		q = q.Where("property_id IS NULL")
	}
	if err := q.Order("id ASC").Limit(1).Find(&existing).Error; err != nil {
		return nil, false, nil, apperr.Internal("failed to look up thread", err)
	}

	if existing.ID != 0 {
		thread = &existing
	} else {
		thread = &model.Conversation{User1ID: u1, User2ID: u2, PropertyID: in.PropertyID, IsActive: true}
		if err := m.db.WithContext(ctx).Create(thread).Error; err != nil {
			return nil, false, nil, apperr.Internal("failed to create thread", err)
		}
		created = true
	}

	if strings.TrimSpace(in.Content) != "" {
		view, err := m.SendMessage(ctx, callerID, thread.ID, in.Content, nil)
		if err != nil {
			return nil, false, nil, err
		}
		first = view
		if err := m.db.WithContext(ctx).First(thread, thread.ID).Error; err != nil {
			return nil, false, nil, apperr.Internal("failed to reload thread", err)
		}
	}
	return thread, created, first, nil
}

// GetThread returns a page of messages oldest first. before pages backwards
// by message id. Incoming messages are marked read.
func (m *Messaging) GetThread(ctx context.Context, callerID, threadID, before uint, limit int) (*ThreadDetail, error) {
	thread, err := participantThread(ctx, m.db, callerID, threadID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = DefaultMessagesPage
	}

	q := m.db.WithContext(ctx).Preload("Attachments").Where("conversation_id = ?", thread.ID)
	if before > 0 {
		q = q.Where("id < ?", before)
	}
	var rows []model.Message
	if err := q.Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, apperr.Internal("failed to load messages", err)
	}

	detail := &ThreadDetail{Thread: *thread, Messages: make([]MessageView, 0, len(rows))}
	if len(rows) > limit {
		detail.HasMore = true
		rows = rows[:limit]
	}
	for i := len(rows) - 1; i >= 0; i-- {
		detail.Messages = append(detail.Messages, m.messageView(ctx, rows[i]))
	}

	users, err := loadSummaries(ctx, m.db, []uint{thread.Other(callerID)})
	if err != nil {
		return nil, apperr.Internal("failed to load user", err)
	}
	if u, ok := users[thread.Other(callerID)]; ok {
		detail.OtherUser = &u
	}

	readAt := m.now()
	if _, err := m.markRead(ctx, thread.ID, callerID, readAt); err != nil {
		logger.FromContext(ctx).Warn("Failed to mark messages read", zap.Uint("thread_id", thread.ID), zap.Error(err))
		return detail, nil
	}
	for i := range detail.Messages {
		if detail.Messages[i].SenderID != callerID && detail.Messages[i].ReadAt == nil {
			detail.Messages[i].ReadAt = &readAt
		}
	}
	return detail, nil
}

// SendMessage stores a message and links the given unlinked attachments to
// it in one transaction. Either every attachment is linked or nothing is
// written.
func (m *Messaging) SendMessage(ctx context.Context, callerID, threadID uint, content string, attachmentIDs []uint) (*MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.BadRequest("content is required")
	}
	if len(content) > MaxMessageLength {
		return nil, apperr.BadRequest("message is too long")
	}
	ids := uniqueIDs(attachmentIDs)

	thread, err := participantThread(ctx, m.db, callerID, threadID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if len(ids) > 0 {
		plan, err := AttachmentPlanFor(ctx, m.db, callerID, now)
		if err != nil {
			return nil, apperr.Internal("failed to resolve plan", err)
		}
		if len(ids) > plan.MaxFilesPerMessage {
			return nil, apperr.BadRequest(fmt.Sprintf("too many attachments, your plan allows %d per message", plan.MaxFilesPerMessage))
		}
	}

	msg := model.Message{ConversationID: thread.ID, SenderID: callerID, Content: content, CreatedAt: now}
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attachments []model.MessageAttachment
		if len(ids) > 0 {
			if err := tx.Where("id IN ?", ids).Find(&attachments).Error; err != nil {
				return apperr.Internal("failed to load attachments", err)
			}
			if len(attachments) != len(ids) {
				return apperr.BadRequest("some attachments do not exist")
			}
			for _, a := range attachments {
				if a.UploaderID != callerID {
					return apperr.Forbidden("attachment does not belong to you")
				}
				if a.ConversationID != thread.ID {
					return apperr.BadRequest("attachment belongs to another thread")
				}
				if a.MessageID != nil {
					return apperr.BadRequest("attachment is already linked to a message")
				}
			}
		}

		if err := tx.Omit("Attachments").Create(&msg).Error; err != nil {
			return apperr.Internal("failed to create message", err)
		}

		if len(ids) > 0 {
			res := tx.Model(&model.MessageAttachment{}).
				Where("id IN ? AND uploader_id = ? AND conversation_id = ? AND message_id IS NULL", ids, callerID, thread.ID).
				Update("message_id", msg.ID)
			if res.Error != nil {
				return apperr.Internal("failed to link attachments", res.Error)
			}
			if res.RowsAffected != int64(len(ids)) {
				return apperr.Conflict("attachments changed while sending, try again")
			}
			for i := range attachments {
				attachments[i].MessageID = &msg.ID
			}
			msg.Attachments = attachments
		}

		if err := tx.Model(&model.Conversation{}).Where("id = ?", thread.ID).
			Update("last_message_at", now).Error; err != nil {
			return apperr.Internal("failed to update thread", err)
		}
		if thread.MatchID != nil {
			if err := tx.Model(&model.CommunityMatch{}).Where("id = ?", *thread.MatchID).
				Update("last_message_at", now).Error; err != nil {
				return apperr.Internal("failed to update match", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Message sent",
		zap.Uint("thread_id", thread.ID),
		zap.Uint("message_id", msg.ID),
		zap.Int("attachments", len(ids)))

	m.notifier.NotifyBestEffort(ctx, Notice{
		UserID:  thread.Other(callerID),
		Type:    model.NotificationNewMessage,
		Title:   "New message",
		Message: preview(content),
		Data:    map[string]interface{}{"threadId": thread.ID, "messageId": msg.ID, "senderId": callerID},
	})

	view := m.messageView(ctx, msg)
	return &view, nil
}

// MarkRead marks the messages other participants sent in threadID as read
func (m *Messaging) MarkRead(ctx context.Context, callerID, threadID uint) (int64, error) {
	thread, err := participantThread(ctx, m.db, callerID, threadID)
	if err != nil {
		return 0, err
	}
	return m.markRead(ctx, thread.ID, callerID, m.now())
}

func (m *Messaging) markRead(ctx context.Context, threadID, callerID uint, at time.Time) (int64, error) {
	res := m.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", threadID, callerID).
		Update("read_at", at)
	if res.Error != nil {
		return 0, apperr.Internal("failed to mark messages read", res.Error)
	}
	return res.RowsAffected, nil
}

// UnreadCount counts unread incoming messages over all of userID's threads
func (m *Messaging) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := m.db.WithContext(ctx).Model(&model.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("(conversations.user1_id = ? OR conversations.user2_id = ?) AND messages.sender_id <> ? AND messages.read_at IS NULL", userID, userID, userID).
		Count(&n).Error
	return n, err
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func preview(s string) string {
	const max = 100
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
