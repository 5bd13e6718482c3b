package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"proctrack/internal/catalog/models"
	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
	"proctrack/pkg/platform/sentinel"
)

// Store is the read side of the workflow catalog.
type Store interface {
	ListActiveByCategory(ctx context.Context, category id.Category) ([]*models.Workflow, error)
	FindByID(ctx context.Context, workflowID id.WorkflowID) (*models.Workflow, error)
	FindOffice(ctx context.Context, officeID id.OfficeID) (*models.Office, error)
}

// Service answers routing questions about workflows. Reads take no locks:
// steps are immutable and the active flag is a plain column read.
type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("catalog store is required")
	}
	svc := &Service{store: store}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc, nil
}

// ActiveWorkflow returns the single active workflow for category. Zero or
// several active workflows is a configuration problem an administrator must
// fix; it is reported as CodeWorkflowMisconfigured and never guessed around.
func (s *Service) ActiveWorkflow(ctx context.Context, category id.Category) (*models.Workflow, error) {
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid category")
	}
	workflows, err := s.store.ListActiveByCategory(ctx, category)
	if err != nil {
		return nil, wrapCatalogErr(err, "failed to load active workflows")
	}
	if len(workflows) != 1 {
		s.logger.WarnContext(ctx, "active workflow misconfigured",
			"category", category.String(),
			"active_count", len(workflows),
		)
		reason := "no_active_workflow"
		if len(workflows) > 1 {
			reason = "multiple_active_workflows"
		}
		return nil, dErrors.NewWithReason(dErrors.CodeWorkflowMisconfigured, reason,
			fmt.Sprintf("expected exactly one active %s workflow, found %d; contact an administrator", category, len(workflows)))
	}
	return workflows[0], nil
}

// Workflow returns a workflow by id, active or not. Transactions keep
// following the workflow they were assigned even after it is deactivated.
func (s *Service) Workflow(ctx context.Context, workflowID id.WorkflowID) (*models.Workflow, error) {
	wf, err := s.store.FindByID(ctx, workflowID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.NewWithReason(dErrors.CodeWorkflowMisconfigured, "workflow_missing",
				fmt.Sprintf("workflow %s not found", workflowID))
		}
		return nil, wrapCatalogErr(err, "failed to load workflow")
	}
	return wf, nil
}

func (s *Service) Office(ctx context.Context, officeID id.OfficeID) (*models.Office, error) {
	office, err := s.store.FindOffice(ctx, officeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "office not found")
		}
		return nil, wrapCatalogErr(err, "failed to load office")
	}
	return office, nil
}

func wrapCatalogErr(err error, msg string) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.Wrap(err, dErrors.CodeWorkflowMisconfigured, "workflow definition is invalid")
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
