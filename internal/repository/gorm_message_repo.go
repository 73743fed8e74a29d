package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-relay/pkg/database"
	"gorm.io/gorm"
)

// messageRecord is the SQL row shape.
type messageRecord struct {
	ID       string    `gorm:"primaryKey;size:32"`
	RoomID   string    `gorm:"size:255;not null;index:idx_room_sent,priority:1"`
	SenderID string    `gorm:"size:255"`
	Body     string    `gorm:"type:text"`
	SentAt   time.Time `gorm:"not null;index:idx_room_sent,priority:2"`
}

func (messageRecord) TableName() string {
	return "chat_messages"
}

// GormMessageRepository stores messages in any SQL database gorm supports.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository migrates the messages table and returns a repository.
func NewGormMessageRepository(db *gorm.DB) (*GormMessageRepository, error) {
	if err := database.AutoMigrate(db, &messageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate messages table: %w", err)
	}
	return &GormMessageRepository{db: db}, nil
}

func (r *GormMessageRepository) Insert(ctx context.Context, msg *domain.ChatMessage) error {
	rec := messageRecord{
		ID:       msg.ID,
		RoomID:   msg.RoomID,
		SenderID: msg.SenderID,
		Body:     string(msg.Body),
		SentAt:   msg.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (r *GormMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	var recs []messageRecord
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("sent_at ASC").
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]domain.ChatMessage, 0, len(recs))
	for _, rec := range recs {
		msg := domain.ChatMessage{
			ID:        rec.ID,
			RoomID:    rec.RoomID,
			SenderID:  rec.SenderID,
			Timestamp: rec.SentAt.UTC(),
		}
		if rec.Body != "" {
			msg.Body = []byte(rec.Body)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (r *GormMessageRepository) Close() error {
	return database.Close(r.db)
}
