// Package events persists domain events to an outbox table so a relay can
// deliver them to downstream consumers without coupling request handling to
// a broker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MemberRoleChangedTopic   = "community.member_role_changed"
	CommunityDeletedTopic    = "community.deleted"
	ChatClearedTopic         = "community.chat_cleared"
	JoinRequestResolvedTopic = "community.join_request_resolved"
)

// CommunityEvent is an outbox row awaiting delivery.
type CommunityEvent struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	CommunityID snowflake.ID   `gorm:"not null"`
	EventType   string         `gorm:"type:text;not null"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"`
	Published   bool           `gorm:"not null;default:false;index:ix_community_events_unpublished,priority:1"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index:ix_community_events_unpublished,priority:2"`
}

// TableName sets the database table name.
func (CommunityEvent) TableName() string { return "community_events" }

type EventPublisher interface {
	// WithTx returns a publisher that writes outbox rows through the given
	// transaction, so the row commits or rolls back with the state change.
	WithTx(tx *gorm.DB) EventPublisher
	Publish(ctx context.Context, topic string, payload []byte) error
}

type outboxPublisher struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewOutboxPublisher(db *gorm.DB, genID *snowflake.Node) EventPublisher {
	return &outboxPublisher{
		db:    db,
		genID: genID,
	}
}

func (p *outboxPublisher) WithTx(tx *gorm.DB) EventPublisher {
	return &outboxPublisher{db: tx, genID: p.genID}
}

type eventEnvelope struct {
	CommunityID string `json:"community_id"`
}

func (p *outboxPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return err
	}

	rawID := strings.TrimSpace(envelope.CommunityID)
	if rawID == "" {
		return errors.New("missing community_id")
	}

	communityID, err := snowflake.ParseString(rawID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return p.db.WithContext(ctx).Exec(
		`INSERT INTO community_events (id, community_id, event_type, payload, published, created_at)
		 VALUES (?, ?, ?, ?, false, ?)`,
		p.genID.Generate(),
		communityID,
		topic,
		datatypes.JSON(payload),
		now,
	).Error
}
