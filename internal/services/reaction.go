package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/huangang/teamspace/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ToggleResult says which way a toggle went.
type ToggleResult string

const (
	ReactionAdded   ToggleResult = "added"
	ReactionRemoved ToggleResult = "removed"
)

// ReactionSummary is one emoji bucket of a message's reactions.
type ReactionSummary struct {
	Emoji   string `json:"emoji"`
	Count   int    `json:"count"`
	UserIDs []uint `json:"user_ids"`
}

// ReactionLedger stores (message, user, emoji) triples with toggle semantics.
type ReactionLedger struct {
	db *gorm.DB
}

func NewReactionLedger(db *gorm.DB) *ReactionLedger {
	return &ReactionLedger{db: db}
}

// Toggle removes the triple if present, otherwise inserts it.
//
// Known race: the delete and the insert are separate statements. Two
// concurrent toggles of an absent triple both see zero deleted rows and both
// attempt the insert; the unique index keeps exactly one row and the loser's
// insert is a no-op, so both callers report ReactionAdded and the ledger ends
// in "reacted" rather than reflecting an even number of attempts. The next
// aggregate broadcast corrects any client that rendered a stale state.
// Closing the race needs a single atomic upsert-or-delete statement.
func (l *ReactionLedger) Toggle(ctx context.Context, messageID, userID uint, emoji string) (ToggleResult, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return "", ErrInvalidContent
	}

	var result ToggleResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Message{}).Where("id = ?", messageID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrMessageNotFound
		}

		del := tx.Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
			Delete(&models.MessageReaction{})
		if del.Error != nil {
			return del.Error
		}
		if del.RowsAffected > 0 {
			result = ReactionRemoved
			return nil
		}

		reaction := models.MessageReaction{MessageID: messageID, UserID: userID, Emoji: emoji}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reaction).Error; err != nil {
			return err
		}
		result = ReactionAdded
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return "", err
		}
		return "", fmt.Errorf("toggle reaction: %w", err)
	}
	return result, nil
}

// Aggregate groups a message's reactions by emoji. Buckets are sorted by
// emoji and user ids by reaction time, so repeated calls are stable.
func (l *ReactionLedger) Aggregate(ctx context.Context, messageID uint) ([]ReactionSummary, error) {
	var rows []models.MessageReaction
	if err := l.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("emoji ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("aggregate reactions: %w", err)
	}

	summaries := make([]ReactionSummary, 0)
	for _, r := range rows {
		n := len(summaries)
		if n == 0 || summaries[n-1].Emoji != r.Emoji {
			summaries = append(summaries, ReactionSummary{Emoji: r.Emoji})
			n++
		}
		summaries[n-1].Count++
		summaries[n-1].UserIDs = append(summaries[n-1].UserIDs, r.UserID)
	}
	return summaries, nil
}
