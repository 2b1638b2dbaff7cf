package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/presence"
	"gorm.io/gorm"
)

const conversationChannelPrefix = "conversation:"

// Presence guards the tracker with channel access rules
type Presence struct {
	db      *gorm.DB
	tracker *presence.Tracker
}

func NewPresence(db *gorm.DB, tracker *presence.Tracker) *Presence {
	return &Presence{db: db, tracker: tracker}
}

// authorize checks userID may see channel. Conversation channels are
// limited to the participants; any other name is open to signed in users.
func (s *Presence) authorize(ctx context.Context, userID uint, channel string) error {
	channel = strings.TrimSpace(channel)
	if channel == "" || len(channel) > 100 {
		return apperr.BadRequest("invalid channel")
	}
	rest, ok := strings.CutPrefix(channel, conversationChannelPrefix)
	if !ok {
		return nil
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || id == 0 {
		return apperr.BadRequest("invalid conversation channel")
	}
	if _, err := participantThread(ctx, s.db, userID, uint(id)); err != nil {
		return apperr.Forbidden("you are not a participant of this conversation")
	}
	return nil
}

// Track records a heartbeat and reports whether the user just joined
func (s *Presence) Track(ctx context.Context, userID uint, channel string, meta map[string]string) (bool, error) {
	if err := s.authorize(ctx, userID, channel); err != nil {
		return false, err
	}
	return s.tracker.Track(channel, userID, meta), nil
}

func (s *Presence) Untrack(ctx context.Context, userID uint, channel string) (bool, error) {
	if err := s.authorize(ctx, userID, channel); err != nil {
		return false, err
	}
	return s.tracker.Untrack(channel, userID), nil
}

func (s *Presence) State(ctx context.Context, userID uint, channel string) ([]presence.Presence, error) {
	if err := s.authorize(ctx, userID, channel); err != nil {
		return nil, err
	}
	return s.tracker.State(channel), nil
}
