package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/edgelake/sheetsink/internal/schema"
)

// PoisonMessage is one archived queue message: a payload that cannot succeed
// on redelivery, parked for inspection instead of looping through the topic.
type PoisonMessage struct {
	ID         int64     `json:"id"`
	Topic      string    `json:"topic"`
	Partition  int       `json:"partition"`
	Offset     int64     `json:"offset"`
	Key        []byte    `json:"key,omitempty"`
	Payload    []byte    `json:"payload"`
	Reason     string    `json:"reason"`
	ArchivedAt time.Time `json:"archived_at"`
}

type PoisonStore struct {
	schemaName string
}

func NewPoisonStore(schemaName string) *PoisonStore {
	return &PoisonStore{schemaName: schemaName}
}

func (s *PoisonStore) table() string {
	return schema.QualifiedName(s.schemaName, "poison_messages")
}

// Archive parks one message. Runs on its own connection, outside any run
// transaction: the archive must survive the rollback that sent the message
// here.
func (s *PoisonStore) Archive(ctx context.Context, db DBTX, m PoisonMessage) error {
	_, err := db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (topic, partition_id, msg_offset, message_key, payload, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.table()), m.Topic, m.Partition, m.Offset, m.Key, m.Payload, m.Reason)
	if err != nil {
		return fmt.Errorf("archive poison message: %w", err)
	}
	return nil
}

// Recent lists the newest archived messages.
func (s *PoisonStore) Recent(ctx context.Context, db DBTX, limit int) ([]PoisonMessage, error) {
	rows, err := db.Query(ctx, fmt.Sprintf(`
		SELECT id, topic, partition_id, msg_offset, message_key, payload, reason, archived_at
		FROM %s ORDER BY id DESC LIMIT $1
	`, s.table()), limit)
	if err != nil {
		return nil, fmt.Errorf("recent poison messages: %w", err)
	}
	defer rows.Close()

	var list []PoisonMessage
	for rows.Next() {
		var m PoisonMessage
		if err := rows.Scan(&m.ID, &m.Topic, &m.Partition, &m.Offset, &m.Key, &m.Payload, &m.Reason, &m.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan poison message: %w", err)
		}
		list = append(list, m)
	}
	if list == nil {
		list = []PoisonMessage{}
	}
	return list, rows.Err()
}
