package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"proctrack/internal/catalog/models"
	"proctrack/internal/catalog/service/mocks"
	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
	"proctrack/pkg/platform/sentinel"
)

type CatalogServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStore *mocks.MockStore
	logs      *bytes.Buffer
	service   *Service
	ctx       context.Context
}

func TestCatalogServiceSuite(t *testing.T) {
	suite.Run(t, new(CatalogServiceSuite))
}

func (s *CatalogServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.logs = &bytes.Buffer{}
	svc, err := New(s.mockStore, WithLogger(slog.New(slog.NewTextHandler(s.logs, nil))))
	s.Require().NoError(err)
	s.service = svc
	s.ctx = context.Background()
}

func (s *CatalogServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *CatalogServiceSuite) workflow(category id.Category) *models.Workflow {
	wf, err := models.NewWorkflow(id.NewWorkflowID(), category, "route", true, []models.StepSpec{
		{OfficeID: id.NewOfficeID(), ExpectedDays: 1},
	}, time.Now())
	s.Require().NoError(err)
	return wf
}

func (s *CatalogServiceSuite) TestNew() {
	_, err := New(nil)
	s.Error(err)
	s.Contains(err.Error(), "catalog store is required")
}

func (s *CatalogServiceSuite) TestActiveWorkflow() {
	s.Run("exactly one active workflow", func() {
		wf := s.workflow(id.CategoryPurchaseOrder)
		s.mockStore.EXPECT().ListActiveByCategory(gomock.Any(), id.CategoryPurchaseOrder).
			Return([]*models.Workflow{wf}, nil)

		got, err := s.service.ActiveWorkflow(s.ctx, id.CategoryPurchaseOrder)
		s.Require().NoError(err)
		s.Equal(wf.ID, got.ID)
	})

	s.Run("no active workflow is misconfigured", func() {
		s.mockStore.EXPECT().ListActiveByCategory(gomock.Any(), id.CategoryVoucher).Return(nil, nil)

		_, err := s.service.ActiveWorkflow(s.ctx, id.CategoryVoucher)
		s.True(dErrors.HasCode(err, dErrors.CodeWorkflowMisconfigured))
		s.Equal("no_active_workflow", dErrors.ReasonOf(err))
	})

	s.Run("two active workflows is misconfigured and logged", func() {
		s.logs.Reset()
		s.mockStore.EXPECT().ListActiveByCategory(gomock.Any(), id.CategoryPurchaseRequest).
			Return([]*models.Workflow{s.workflow(id.CategoryPurchaseRequest), s.workflow(id.CategoryPurchaseRequest)}, nil)

		_, err := s.service.ActiveWorkflow(s.ctx, id.CategoryPurchaseRequest)
		s.True(dErrors.HasCode(err, dErrors.CodeWorkflowMisconfigured))
		s.Equal("multiple_active_workflows", dErrors.ReasonOf(err))
		s.Contains(s.logs.String(), "active_count=2")
	})

	s.Run("invalid stored definition is misconfigured", func() {
		s.mockStore.EXPECT().ListActiveByCategory(gomock.Any(), id.CategoryPurchaseOrder).
			Return(nil, dErrors.New(dErrors.CodeInvariantViolation, "step orders must run 1..3 without gaps"))

		_, err := s.service.ActiveWorkflow(s.ctx, id.CategoryPurchaseOrder)
		s.True(dErrors.HasCode(err, dErrors.CodeWorkflowMisconfigured))
	})

	s.Run("store failure is internal", func() {
		s.mockStore.EXPECT().ListActiveByCategory(gomock.Any(), id.CategoryPurchaseOrder).
			Return(nil, errors.New("connection reset"))

		_, err := s.service.ActiveWorkflow(s.ctx, id.CategoryPurchaseOrder)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("invalid category never reaches the store", func() {
		_, err := s.service.ActiveWorkflow(s.ctx, id.Category("ZZ"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *CatalogServiceSuite) TestWorkflow() {
	s.Run("missing workflow is misconfigured", func() {
		s.mockStore.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Workflow(s.ctx, id.NewWorkflowID())
		s.True(dErrors.HasCode(err, dErrors.CodeWorkflowMisconfigured))
	})

	s.Run("found", func() {
		wf := s.workflow(id.CategoryVoucher)
		s.mockStore.EXPECT().FindByID(gomock.Any(), wf.ID).Return(wf, nil)

		got, err := s.service.Workflow(s.ctx, wf.ID)
		s.Require().NoError(err)
		s.Same(wf, got)
	})
}

func (s *CatalogServiceSuite) TestOffice() {
	s.mockStore.EXPECT().FindOffice(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)

	_, err := s.service.Office(s.ctx, id.NewOfficeID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
