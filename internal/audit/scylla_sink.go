package audit

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"billetterie_back_end/internal/models"
)

const schemaAuditLogs = `CREATE TABLE IF NOT EXISTS audit_logs (
	resource text,
	resource_id text,
	id timeuuid,
	audit_id text,
	user_id text,
	user_name text,
	user_email text,
	action text,
	reason text,
	evidence text,
	old_value text,
	new_value text,
	ip_address text,
	user_agent text,
	success boolean,
	error_msg text,
	timestamp timestamp,
	PRIMARY KEY ((resource, resource_id), id)
) WITH CLUSTERING ORDER BY (id DESC)`

// ScyllaSink recopie les entrées dans la table audit_logs, partitionnée par
// ressource pour les consultations par entité.
type ScyllaSink struct {
	session *gocql.Session
}

func NewScyllaSink(session *gocql.Session) (*ScyllaSink, error) {
	if err := session.Query(schemaAuditLogs).Exec(); err != nil {
		return nil, fmt.Errorf("création table audit_logs: %w", err)
	}
	return &ScyllaSink{session: session}, nil
}

func (s *ScyllaSink) Write(ctx context.Context, e models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			resource, resource_id, id, audit_id, user_id, user_name, user_email,
			action, reason, evidence, old_value, new_value, ip_address,
			user_agent, success, error_msg, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	return s.session.Query(query,
		e.Resource, e.ResourceID, gocql.UUIDFromTime(e.Timestamp), e.ID, e.UserID, e.UserName, e.UserEmail,
		e.Action, e.Reason, e.Evidence, e.OldValue, e.NewValue, e.IPAddress,
		e.UserAgent, e.Success, e.ErrorMsg, e.Timestamp,
	).WithContext(ctx).Exec()
}
