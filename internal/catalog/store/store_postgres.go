package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"proctrack/internal/catalog/models"
	"proctrack/internal/platform/postgres"
	id "proctrack/pkg/domain"
	"proctrack/pkg/platform/sentinel"
	txcontext "proctrack/pkg/platform/tx"
)

// PostgresStore reads workflows, steps and offices from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// SaveWorkflow inserts a workflow and its steps. Steps are immutable, so an
// existing workflow only has its name and active flag refreshed.
func (s *PostgresStore) SaveWorkflow(ctx context.Context, wf *models.Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save workflow: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, category, name, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active
	`, uuid.UUID(wf.ID), string(wf.Category), wf.Name, wf.Active, wf.CreatedAt)
	if err != nil {
		return fmt.Errorf("save workflow: %w", postgres.Classify(err))
	}
	for _, step := range wf.Steps {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (id, workflow_id, step_order, office_id, expected_days, name)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, uuid.UUID(step.ID), uuid.UUID(wf.ID), step.StepOrder, uuid.UUID(step.OfficeID), step.ExpectedDays, step.Name)
		if err != nil {
			return fmt.Errorf("save workflow step %d: %w", step.StepOrder, postgres.Classify(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save workflow: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveOffice(ctx context.Context, office *models.Office) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO offices (id, name, abbreviation) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, abbreviation = EXCLUDED.abbreviation
	`, uuid.UUID(office.ID), office.Name, office.Abbreviation)
	if err != nil {
		return fmt.Errorf("save office: %w", postgres.Classify(err))
	}
	return nil
}

func (s *PostgresStore) SetActive(ctx context.Context, workflowID id.WorkflowID, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE workflows SET active = $2 WHERE id = $1`, uuid.UUID(workflowID), active)
	if err != nil {
		return fmt.Errorf("set workflow active: %w", postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListActiveByCategory(ctx context.Context, category id.Category) ([]*models.Workflow, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT id, category, name, active, created_at
		FROM workflows
		WHERE category = $1 AND active
		ORDER BY created_at
	`, string(category))
	if err != nil {
		return nil, fmt.Errorf("list active workflows: %w", postgres.Classify(err))
	}
	workflows, err := scanWorkflows(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadSteps(ctx, exec, workflows); err != nil {
		return nil, err
	}
	return workflows, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, workflowID id.WorkflowID) (*models.Workflow, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT id, category, name, active, created_at FROM workflows WHERE id = $1
	`, uuid.UUID(workflowID))
	if err != nil {
		return nil, fmt.Errorf("find workflow: %w", postgres.Classify(err))
	}
	workflows, err := scanWorkflows(rows)
	if err != nil {
		return nil, err
	}
	if len(workflows) == 0 {
		return nil, sentinel.ErrNotFound
	}
	if err := s.loadSteps(ctx, exec, workflows); err != nil {
		return nil, err
	}
	return workflows[0], nil
}

func (s *PostgresStore) FindOffice(ctx context.Context, officeID id.OfficeID) (*models.Office, error) {
	var (
		rawID  uuid.UUID
		office models.Office
	)
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, name, abbreviation FROM offices WHERE id = $1`, uuid.UUID(officeID),
	).Scan(&rawID, &office.Name, &office.Abbreviation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find office: %w", postgres.Classify(err))
	}
	office.ID = id.OfficeID(rawID)
	return &office, nil
}

func scanWorkflows(rows *sql.Rows) ([]*models.Workflow, error) {
	defer rows.Close()
	var out []*models.Workflow
	for rows.Next() {
		var (
			rawID    uuid.UUID
			category string
			wf       models.Workflow
		)
		if err := rows.Scan(&rawID, &category, &wf.Name, &wf.Active, &wf.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		wf.ID = id.WorkflowID(rawID)
		wf.Category = id.Category(category)
		out = append(out, &wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) loadSteps(ctx context.Context, exec txcontext.Executor, workflows []*models.Workflow) error {
	if len(workflows) == 0 {
		return nil
	}
	byID := make(map[id.WorkflowID]*models.Workflow, len(workflows))
	ids := make([]string, 0, len(workflows))
	for _, wf := range workflows {
		byID[wf.ID] = wf
		ids = append(ids, wf.ID.String())
	}

	rows, err := exec.QueryContext(ctx, `
		SELECT id, workflow_id, step_order, office_id, expected_days, name
		FROM workflow_steps
		WHERE workflow_id = ANY($1::uuid[])
		ORDER BY workflow_id, step_order
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load workflow steps: %w", postgres.Classify(err))
	}
	defer rows.Close()
	for rows.Next() {
		var (
			stepID, workflowID, officeID uuid.UUID
			step                         models.Step
		)
		if err := rows.Scan(&stepID, &workflowID, &step.StepOrder, &officeID, &step.ExpectedDays, &step.Name); err != nil {
			return fmt.Errorf("scan workflow step: %w", err)
		}
		step.ID = id.StepID(stepID)
		step.WorkflowID = id.WorkflowID(workflowID)
		step.OfficeID = id.OfficeID(officeID)
		if wf, ok := byID[step.WorkflowID]; ok {
			wf.Steps = append(wf.Steps, step)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate workflow steps: %w", err)
	}
	for _, wf := range workflows {
		wf.SortSteps()
		if err := wf.Validate(); err != nil {
			return fmt.Errorf("workflow %s: %w", wf.ID, err)
		}
	}
	return nil
}
