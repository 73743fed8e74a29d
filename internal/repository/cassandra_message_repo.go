package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/config"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
)

const cassandraSchema = `CREATE TABLE IF NOT EXISTS messages_by_room (
	room_id    text,
	message_id text,
	sender_id  text,
	body       text,
	created_at timestamp,
	PRIMARY KEY ((room_id), message_id)
) WITH CLUSTERING ORDER BY (message_id ASC)`

// CassandraMessageRepository stores one partition per room, clustered by
// message id.
type CassandraMessageRepository struct {
	session *gocql.Session
}

func NewCassandraMessageRepository(cfg config.CassandraConfig) (*CassandraMessageRepository, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.Timeout = cfg.Timeout

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	if cfg.CreateSchema {
		if err := session.Query(cassandraSchema).Exec(); err != nil {
			session.Close()
			return nil, fmt.Errorf("failed to create messages table: %w", err)
		}
	}

	return &CassandraMessageRepository{session: session}, nil
}

func (r *CassandraMessageRepository) Insert(ctx context.Context, msg *domain.ChatMessage) error {
	query := `INSERT INTO messages_by_room (room_id, message_id, sender_id, body, created_at)
			  VALUES (?, ?, ?, ?, ?)`

	err := r.session.Query(query,
		msg.RoomID,
		msg.ID,
		msg.SenderID,
		string(msg.Body),
		msg.Timestamp,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (r *CassandraMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	query := `SELECT message_id, room_id, sender_id, body, created_at
			  FROM messages_by_room
			  WHERE room_id = ?
			  ORDER BY message_id ASC`

	iter := r.session.Query(query, roomID).WithContext(ctx).Iter()

	var messages []domain.ChatMessage
	var (
		msg       domain.ChatMessage
		body      string
		createdAt time.Time
	)
	for iter.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &body, &createdAt) {
		msg.Timestamp = createdAt.UTC()
		if body != "" {
			msg.Body = []byte(body)
		}
		messages = append(messages, msg)
		msg = domain.ChatMessage{}
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

func (r *CassandraMessageRepository) Close() error {
	r.session.Close()
	return nil
}

// parseConsistency converts a string consistency level to gocql.Consistency.
func parseConsistency(s string) gocql.Consistency {
	switch strings.ToUpper(s) {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_ONE":
		return gocql.LocalOne
	case "EACH_QUORUM":
		return gocql.EachQuorum
	default:
		return gocql.LocalQuorum
	}
}
