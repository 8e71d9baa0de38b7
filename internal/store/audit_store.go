package store

import (
	"context"
	"time"
)

type AuditStore struct {
	db DB
}

type AuditEntry struct {
	ID           string    `db:"id"`
	ActorOwnerID *string   `db:"actor_owner_id"`
	Action       string    `db:"action"`
	EntityType   string    `db:"entity_type"`
	EntityID     string    `db:"entity_id"`
	Data         string    `db:"data"`
	CreatedAt    time.Time `db:"created_at"`
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

// Log records an action inside the caller's transaction. An empty actorID is
// stored as NULL (system actions such as the welcome bonus).
func (s *AuditStore) Log(ctx context.Context, tx Execer, actorID, action, entityType, entityID, data string) error {
	var actor *string
	if actorID != "" {
		actor = &actorID
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_owner_id, action, entity_type, entity_id, data)
		VALUES (gen_random_uuid()::text, $1, $2, $3, $4, $5)
	`, actor, action, entityType, entityID, data)
	return err
}

func (s *AuditStore) ListByActor(ctx context.Context, ownerID string, limit, offset int) ([]AuditEntry, error) {
	var rows []AuditEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_owner_id, action, entity_type, entity_id, data::text AS data, created_at
		FROM audit_logs
		WHERE actor_owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
