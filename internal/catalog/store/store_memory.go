package store

import (
	"context"
	"slices"
	"sync"

	"proctrack/internal/catalog/models"
	id "proctrack/pkg/domain"
	"proctrack/pkg/platform/sentinel"
)

// InMemory keeps workflows and offices in maps. Returned workflows are
// copies; callers may not mutate stored steps.
type InMemory struct {
	mu        sync.RWMutex
	workflows map[id.WorkflowID]*models.Workflow
	offices   map[id.OfficeID]*models.Office
}

func NewInMemory() *InMemory {
	return &InMemory{
		workflows: make(map[id.WorkflowID]*models.Workflow),
		offices:   make(map[id.OfficeID]*models.Office),
	}
}

func (s *InMemory) SaveWorkflow(_ context.Context, wf *models.Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.ID] = cloneWorkflow(wf)
	return nil
}

func (s *InMemory) SaveOffice(_ context.Context, office *models.Office) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *office
	s.offices[office.ID] = &copied
	return nil
}

// SetActive flips the active flag of a workflow.
func (s *InMemory) SetActive(_ context.Context, workflowID id.WorkflowID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return sentinel.ErrNotFound
	}
	wf.Active = active
	return nil
}

func (s *InMemory) ListActiveByCategory(_ context.Context, category id.Category) ([]*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Workflow
	for _, wf := range s.workflows {
		if wf.Active && wf.Category == category {
			out = append(out, cloneWorkflow(wf))
		}
	}
	slices.SortFunc(out, func(a, b *models.Workflow) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *InMemory) FindByID(_ context.Context, workflowID id.WorkflowID) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneWorkflow(wf), nil
}

func (s *InMemory) FindOffice(_ context.Context, officeID id.OfficeID) (*models.Office, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	office, ok := s.offices[officeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *office
	return &copied, nil
}

func cloneWorkflow(wf *models.Workflow) *models.Workflow {
	copied := *wf
	copied.Steps = slices.Clone(wf.Steps)
	return &copied
}
