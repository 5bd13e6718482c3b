package notify

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	id "proctrack/pkg/domain"
)

// Directory resolves notification recipients the engine does not hold
// itself. Administrators receive every overdue notice.
type Directory interface {
	Administrators(ctx context.Context) ([]id.UserID, error)
}

// StaticDirectory is a fixed administrator list for tests and development.
type StaticDirectory struct {
	mu     sync.RWMutex
	admins []id.UserID
}

func NewStaticDirectory(admins ...id.UserID) *StaticDirectory {
	return &StaticDirectory{admins: admins}
}

func (d *StaticDirectory) Administrators(_ context.Context) ([]id.UserID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.admins), nil
}

// PostgresDirectory reads active administrators from the users table.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Administrators(ctx context.Context) ([]id.UserID, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id FROM users WHERE active AND $1 = ANY(roles) ORDER BY id`, id.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("list administrators: %w", err)
	}
	defer rows.Close()

	var admins []id.UserID
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan administrator: %w", err)
		}
		admins = append(admins, id.UserID(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate administrators: %w", err)
	}
	return admins, nil
}

// Recipients merges the holder with administrators, dropping duplicates.
func Recipients(holder *id.UserID, admins []id.UserID) []id.UserID {
	out := make([]id.UserID, 0, len(admins)+1)
	if holder != nil {
		out = append(out, *holder)
	}
	for _, admin := range admins {
		if !slices.Contains(out, admin) {
			out = append(out, admin)
		}
	}
	return out
}
