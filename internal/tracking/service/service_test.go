package service_test

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ReferenceGenerator,Assigner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"proctrack/internal/assignment"
	catalogmodels "proctrack/internal/catalog/models"
	catalogservice "proctrack/internal/catalog/service"
	catalogstore "proctrack/internal/catalog/store"
	"proctrack/internal/notify/notifytest"
	refnumservice "proctrack/internal/refnum/service"
	refnumstore "proctrack/internal/refnum/store"
	"proctrack/internal/tracking/metrics"
	"proctrack/internal/tracking/models"
	"proctrack/internal/tracking/policy"
	"proctrack/internal/tracking/service"
	"proctrack/internal/tracking/service/mocks"
	"proctrack/internal/tracking/store"
	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
	"proctrack/pkg/platform/sentinel"
	"proctrack/pkg/requestcontext"
)

// =============================================================================
// Engine Test Suite
// =============================================================================
// Flows run against the in-memory stores, the real catalog, generator and
// resolver. Every transition goes through the same sharded lock the service
// uses in memory mode.

type EngineSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	txns     *store.InMemory
	catalog  *catalogstore.InMemory
	notifier *notifytest.Recorder
	metrics  *metrics.Metrics
	engine   *service.Engine
	workflow *catalogmodels.Workflow

	supply, budget, accounting, elsewhere id.OfficeID

	creator, budgetClerk, budgetHead, accountant, admin id.Actor
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.now = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.supply, s.budget, s.accounting, s.elsewhere = id.NewOfficeID(), id.NewOfficeID(), id.NewOfficeID(), id.NewOfficeID()
	s.creator = id.Actor{UserID: id.NewUserID(), OfficeID: s.supply}
	s.budgetClerk = id.Actor{UserID: id.NewUserID(), OfficeID: s.budget}
	s.budgetHead = id.Actor{UserID: id.NewUserID(), OfficeID: s.budget}
	s.accountant = id.Actor{UserID: id.NewUserID(), OfficeID: s.accounting}
	s.admin = id.Actor{UserID: id.NewUserID(), OfficeID: s.elsewhere, Roles: []string{id.RoleAdmin}}

	s.catalog = catalogstore.NewInMemory()
	for _, officeID := range []id.OfficeID{s.supply, s.budget, s.accounting, s.elsewhere} {
		s.Require().NoError(s.catalog.SaveOffice(s.ctx, &catalogmodels.Office{ID: officeID, Name: "office"}))
	}
	wf, err := catalogmodels.NewWorkflow(id.NewWorkflowID(), id.CategoryPurchaseOrder, "PO route", true, []catalogmodels.StepSpec{
		{OfficeID: s.supply, ExpectedDays: 1},
		{OfficeID: s.budget, ExpectedDays: 2},
		{OfficeID: s.accounting, ExpectedDays: 3},
	}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.catalog.SaveWorkflow(s.ctx, wf))
	s.workflow = wf

	catalog, err := catalogservice.New(s.catalog, catalogservice.WithLogger(logger))
	s.Require().NoError(err)
	refs, err := refnumservice.New(refnumstore.NewInMemory(), refnumservice.WithLocation(time.UTC), refnumservice.WithLogger(logger))
	s.Require().NoError(err)
	resolver, err := assignment.New(catalog, assignment.WithLogger(logger))
	s.Require().NoError(err)

	s.txns = store.NewInMemory()
	s.notifier = notifytest.NewRecorder()
	s.metrics = metrics.New(prometheus.NewRegistry())
	engine, err := service.New(s.txns, s.txns, refs, catalog, resolver,
		service.WithLogger(logger),
		service.WithNotifier(s.notifier),
		service.WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	s.engine = engine
}

// registeredOffice adds an office that no workflow routes through.
func (s *EngineSuite) registeredOffice() id.OfficeID {
	officeID := id.NewOfficeID()
	s.Require().NoError(s.catalog.SaveOffice(s.ctx, &catalogmodels.Office{ID: officeID, Name: "unrouted office"}))
	return officeID
}

func (s *EngineSuite) create() *models.Transaction {
	txn, err := s.engine.Create(s.ctx, s.creator, service.CreateRequest{Category: id.CategoryPurchaseOrder})
	s.Require().NoError(err)
	return txn
}

func (s *EngineSuite) endorse(actor id.Actor, txnID id.TransactionID, to id.OfficeID) *service.EndorseResult {
	res, err := s.engine.Endorse(s.ctx, actor, txnID, to, "")
	s.Require().NoError(err)
	return res
}

func (s *EngineSuite) receive(actor id.Actor, txnID id.TransactionID) *models.Transaction {
	txn, _, err := s.engine.Receive(s.ctx, actor, txnID, "")
	s.Require().NoError(err)
	return txn
}

// atFinalStep walks a new document along the route to accounting and
// returns it received there.
func (s *EngineSuite) atFinalStep() *models.Transaction {
	txn := s.create()
	s.endorse(s.creator, txn.ID, s.budget)
	s.receive(s.budgetClerk, txn.ID)
	s.endorse(s.budgetClerk, txn.ID, s.accounting)
	return s.receive(s.accountant, txn.ID)
}

func (s *EngineSuite) assertReason(err error, code dErrors.Code, reason policy.Reason) {
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), err.Error())
	s.Equal(string(reason), dErrors.ReasonOf(err))
}

// =============================================================================
// Create
// =============================================================================

func (s *EngineSuite) TestCreateAssignsWorkflowAndReference() {
	txn := s.create()

	s.Equal("PO-2025-000001", txn.ReferenceNumber)
	s.Equal(models.StatusCreated, txn.Status)
	s.Equal(s.workflow.ID, *txn.WorkflowID)
	s.Equal(s.workflow.Steps[0].ID, *txn.CurrentStepID)
	s.Equal(s.supply, *txn.CurrentOfficeID)
	s.Equal(s.creator.UserID, *txn.CurrentUserID)
	s.Equal(models.StageHeld, txn.Stage())

	stored, err := s.engine.Get(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Equal(txn.ReferenceNumber, stored.ReferenceNumber)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.CreatedTotal.WithLabelValues("PO")))
}

func (s *EngineSuite) TestGetByReference() {
	txn := s.create()

	found, err := s.engine.GetByReference(s.ctx, "  po-2025-000001 ")
	s.Require().NoError(err)
	s.Equal(txn.ID, found.ID)

	_, err = s.engine.GetByReference(s.ctx, "PO-2025-999999")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.engine.GetByReference(s.ctx, " ")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *EngineSuite) TestCreateWithoutActiveWorkflowBurnsNoNumber() {
	_, err := s.engine.Create(s.ctx, s.creator, service.CreateRequest{Category: id.CategoryVoucher})
	s.True(dErrors.HasCode(err, dErrors.CodeWorkflowMisconfigured))

	wf, err := catalogmodels.NewWorkflow(id.NewWorkflowID(), id.CategoryVoucher, "VCH route", true, []catalogmodels.StepSpec{
		{OfficeID: s.accounting, ExpectedDays: 2},
	}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.catalog.SaveWorkflow(s.ctx, wf))

	txn, err := s.engine.Create(s.ctx, s.accountant, service.CreateRequest{Category: id.CategoryVoucher})
	s.Require().NoError(err)
	s.Equal("VCH-2025-000001", txn.ReferenceNumber)
}

func (s *EngineSuite) TestCreateRejectsAnonymousAndInvalidInput() {
	_, err := s.engine.Create(s.ctx, id.Actor{}, service.CreateRequest{Category: id.CategoryPurchaseOrder})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.engine.Create(s.ctx, s.creator, service.CreateRequest{Category: "XX"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *EngineSuite) TestCreateRejectsUnknownOffices() {
	orphan := id.Actor{UserID: id.NewUserID(), OfficeID: id.NewOfficeID()}
	_, err := s.engine.Create(s.ctx, orphan, service.CreateRequest{Category: id.CategoryPurchaseOrder})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Equal(service.ReasonUnknownOffice, dErrors.ReasonOf(err))

	unknown := id.NewOfficeID()
	_, err = s.engine.Create(s.ctx, s.creator, service.CreateRequest{Category: id.CategoryPurchaseOrder, RequestingOfficeID: &unknown})
	s.Equal(service.ReasonUnknownOffice, dErrors.ReasonOf(err))

	left, err := s.txns.ListWithoutWorkflow(s.ctx, id.TransactionID{}, 10)
	s.Require().NoError(err)
	s.Empty(left)
}

// =============================================================================
// Endorse
// =============================================================================

func (s *EngineSuite) TestEndorseAlongRouteRaisesNoSignal() {
	txn := s.create()

	res := s.endorse(s.creator, txn.ID, s.budget)
	s.Nil(res.OutOfWorkflow)
	s.Equal(models.StatusInProgress, res.Transaction.Status, "first hop starts the document")
	s.Equal(s.budget, *res.Transaction.CurrentOfficeID)
	s.Nil(res.Transaction.CurrentUserID)
	s.Nil(res.Transaction.ReceivedAt)
	s.Equal(models.StageAwaitingReceipt, res.Transaction.Stage())

	s.Equal(models.ActionEndorse, res.Action.Type)
	s.Equal(s.supply, *res.Action.FromOfficeID)
	s.Equal(s.budget, *res.Action.ToOfficeID)
	s.Empty(s.notifier.OutOfWorkflowEvents())
}

func (s *EngineSuite) TestEndorseOffRouteProceedsWithSignal() {
	txn := s.create()

	res := s.endorse(s.creator, txn.ID, s.accounting)
	s.Require().NotNil(res.OutOfWorkflow)
	s.Equal(s.accounting, res.OutOfWorkflow.Actual)
	s.Require().NotNil(res.OutOfWorkflow.Expected)
	s.Equal(s.budget, *res.OutOfWorkflow.Expected)
	s.Equal(s.accounting, *res.Transaction.CurrentOfficeID, "transition is never blocked")

	events := s.notifier.OutOfWorkflowEvents()
	s.Require().Len(events, 1)
	s.Equal(res.Action.ID, events[0].ActionID)
	s.Equal(s.budget, *events[0].ExpectedOfficeID)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.OutOfWorkflowTotal))
}

func (s *EngineSuite) TestEndorseFromStepLessLocation() {
	txn := s.create()
	s.endorse(s.creator, txn.ID, s.elsewhere)
	stray := id.Actor{UserID: id.NewUserID(), OfficeID: s.elsewhere}
	received := s.receive(stray, txn.ID)
	s.Nil(received.CurrentStepID, "office off the route leaves the document step-less")
	s.Equal(models.Located, received.Location().Kind)

	s.Run("back onto a route office raises no signal", func() {
		res := s.endorse(stray, txn.ID, s.budget)
		s.Nil(res.OutOfWorkflow)
	})

	s.Run("receipt lands back on the step", func() {
		got := s.receive(s.budgetClerk, txn.ID)
		s.Equal(s.workflow.Steps[1].ID, *got.CurrentStepID)
	})

	other := s.create()
	s.endorse(s.creator, other.ID, s.elsewhere)
	s.receive(stray, other.ID)

	s.Run("off the route again signals with an unknown expected office", func() {
		res := s.endorse(stray, other.ID, s.registeredOffice())
		s.Require().NotNil(res.OutOfWorkflow)
		s.Nil(res.OutOfWorkflow.Expected)
	})
}

func (s *EngineSuite) TestEndorseDenials() {
	txn := s.create()

	_, err := s.engine.Endorse(s.ctx, s.budgetClerk, txn.ID, s.budget, "")
	s.assertReason(err, dErrors.CodeForbidden, policy.ReasonNotHolder)

	s.endorse(s.creator, txn.ID, s.budget)
	_, err = s.engine.Endorse(s.ctx, s.budgetClerk, txn.ID, s.accounting, "")
	s.assertReason(err, dErrors.CodeInvalidTransition, policy.ReasonAwaitingReceipt)

	_, err = s.engine.Endorse(s.ctx, s.creator, id.NewTransactionID(), s.budget, "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.engine.Endorse(s.ctx, s.creator, txn.ID, id.OfficeID{}, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.DenialsTotal.WithLabelValues("endorse", "not_holder")))
}

func (s *EngineSuite) TestEndorseToUnknownOfficeIsInvalidInput() {
	txn := s.create()

	_, err := s.engine.Endorse(s.ctx, s.creator, txn.ID, id.NewOfficeID(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), err.Error())
	s.Equal(service.ReasonUnknownOffice, dErrors.ReasonOf(err))

	stored, err := s.engine.Get(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Equal(s.supply, *stored.CurrentOfficeID, "the document stays with its holder")
	s.Empty(s.notifier.OutOfWorkflowEvents())
}

func (s *EngineSuite) TestEndorseAtFinalStepIsRefused() {
	txn := s.atFinalStep()

	_, err := s.engine.Endorse(s.ctx, s.accountant, txn.ID, s.supply, "")
	s.assertReason(err, dErrors.CodeInvalidTransition, policy.ReasonFinalStep)
}

// =============================================================================
// Receive
// =============================================================================

func (s *EngineSuite) TestReceiveAdvancesStepAndNotifiesCreator() {
	txn := s.create()
	s.endorse(s.creator, txn.ID, s.budget)

	got, action, err := s.engine.Receive(s.ctx, s.budgetClerk, txn.ID, "received complete")
	s.Require().NoError(err)
	s.Equal(s.workflow.Steps[1].ID, *got.CurrentStepID)
	s.Equal(s.budgetClerk.UserID, *got.CurrentUserID)
	s.Require().NotNil(got.ReceivedAt)
	s.Equal(models.ActionReceive, action.Type)
	s.Equal("received complete", action.Remarks)

	events := s.notifier.ReceivedEvents()
	s.Require().Len(events, 1)
	s.Equal(s.creator.UserID, events[0].CreatorUserID)
	s.Equal(s.budget, events[0].OfficeID)
}

func (s *EngineSuite) TestSecondReceiveIsAlreadyReceived() {
	txn := s.create()
	s.endorse(s.creator, txn.ID, s.budget)
	s.receive(s.budgetClerk, txn.ID)

	for _, actor := range []id.Actor{s.budgetClerk, s.budgetHead, s.accountant} {
		_, _, err := s.engine.Receive(s.ctx, actor, txn.ID, "")
		s.assertReason(err, dErrors.CodeInvalidTransition, policy.ReasonAlreadyReceived)
	}
}

func (s *EngineSuite) TestReceiveAtWrongOfficeIsDenied() {
	txn := s.create()
	s.endorse(s.creator, txn.ID, s.budget)

	_, _, err := s.engine.Receive(s.ctx, s.accountant, txn.ID, "")
	s.assertReason(err, dErrors.CodeForbidden, policy.ReasonWrongOffice)
}

func (s *EngineSuite) TestConcurrentReceiveHasOneWinner() {
	txn := s.create()
	s.endorse(s.creator, txn.ID, s.budget)

	const goroutines = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		already   int
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor := id.Actor{UserID: id.NewUserID(), OfficeID: s.budget}
			_, _, err := s.engine.Receive(s.ctx, actor, txn.ID, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case dErrors.ReasonOf(err) == string(policy.ReasonAlreadyReceived):
				already++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, successes)
	s.Equal(goroutines-1, already)

	actions, err := s.engine.Timeline(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Len(actions, 2, "one endorse, one receive")
}

func (s *EngineSuite) TestConcurrentDoubleEndorseHasOneWinner() {
	txn := s.create()

	const goroutines = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.engine.Endorse(s.ctx, s.creator, txn.ID, s.budget, "")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, successes, "later endorsements find the document awaiting receipt")
}

// =============================================================================
// Complete
// =============================================================================

func (s *EngineSuite) TestCompleteAtFinalStep() {
	txn := s.atFinalStep()

	done, action, err := s.engine.Complete(s.ctx, s.accountant, txn.ID, "")
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, done.Status)
	s.Equal(models.ActionComplete, action.Type)
	s.Equal(models.StageClosed, done.Stage())

	events := s.notifier.CompletedEvents()
	s.Require().Len(events, 1)
	s.Equal(s.creator.UserID, events[0].CreatorUserID)
	s.Equal(s.accountant.UserID, events[0].CompletedByUserID)

	for _, actor := range []id.Actor{s.accountant, s.admin, s.creator} {
		_, err := s.engine.Endorse(s.ctx, actor, txn.ID, s.supply, "")
		s.assertReason(err, dErrors.CodeInvalidTransition, policy.ReasonTerminal)
	}
}

func (s *EngineSuite) TestCompleteBeforeFinalStep() {
	txn := s.create()
	s.endorse(s.creator, txn.ID, s.budget)
	s.receive(s.budgetClerk, txn.ID)

	_, _, err := s.engine.Complete(s.ctx, s.budgetClerk, txn.ID, "")
	s.assertReason(err, dErrors.CodeInvalidTransition, policy.ReasonNotFinalStep)

	_, _, err = s.engine.Complete(s.ctx, s.budgetHead, txn.ID, "")
	s.assertReason(err, dErrors.CodeForbidden, policy.ReasonNotHolder)
}

// =============================================================================
// Hold, Resume, Cancel
// =============================================================================

func (s *EngineSuite) TestHoldAndResume() {
	txn := s.create()
	s.endorse(s.creator, txn.ID, s.budget)
	s.receive(s.budgetClerk, txn.ID)

	held, err := s.engine.Hold(s.ctx, s.budgetClerk, txn.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusOnHold, held.Status)

	_, err = s.engine.Endorse(s.ctx, s.budgetClerk, txn.ID, s.accounting, "")
	s.assertReason(err, dErrors.CodeInvalidTransition, policy.ReasonOnHold)

	_, err = s.engine.Resume(s.ctx, s.accountant, txn.ID)
	s.assertReason(err, dErrors.CodeForbidden, policy.ReasonWrongOffice)

	resumed, err := s.engine.Resume(s.ctx, s.budgetHead, txn.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, resumed.Status)

	actions, err := s.engine.Timeline(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Len(actions, 2, "pauses are not ledger entries")
}

func (s *EngineSuite) TestCancel() {
	txn := s.create()

	_, err := s.engine.Cancel(s.ctx, s.budgetClerk, txn.ID)
	s.assertReason(err, dErrors.CodeForbidden, policy.ReasonNotCreator)

	cancelled, err := s.engine.Cancel(s.ctx, s.admin, txn.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, cancelled.Status)

	_, err = s.engine.Cancel(s.ctx, s.creator, txn.ID)
	s.assertReason(err, dErrors.CodeInvalidTransition, policy.ReasonTerminal)
}

func (s *EngineSuite) TestTimelineIsOrdered() {
	txn := s.atFinalStep()

	actions, err := s.engine.Timeline(s.ctx, txn.ID)
	s.Require().NoError(err)
	types := make([]models.ActionType, 0, len(actions))
	for _, a := range actions {
		types = append(types, a.Type)
	}
	s.Equal([]models.ActionType{models.ActionEndorse, models.ActionReceive, models.ActionEndorse, models.ActionReceive}, types)

	_, err = s.engine.Timeline(s.ctx, id.NewTransactionID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =============================================================================
// Collaborator Failure Test Suite
// =============================================================================

type EngineFailureSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	refs     *mocks.MockReferenceGenerator
	assigner *mocks.MockAssigner
	txns     *store.InMemory
	offices  *catalogstore.InMemory
	engine   *service.Engine
	ctx      context.Context
	creator  id.Actor
}

func TestEngineFailureSuite(t *testing.T) {
	suite.Run(t, new(EngineFailureSuite))
}

func (s *EngineFailureSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.refs = mocks.NewMockReferenceGenerator(s.ctrl)
	s.assigner = mocks.NewMockAssigner(s.ctrl)
	s.txns = store.NewInMemory()
	s.ctx = context.Background()
	s.creator = id.Actor{UserID: id.NewUserID(), OfficeID: id.NewOfficeID()}
	s.offices = catalogstore.NewInMemory()
	s.Require().NoError(s.offices.SaveOffice(s.ctx, &catalogmodels.Office{ID: s.creator.OfficeID, Name: "supply"}))
	catalog, err := catalogservice.New(s.offices)
	s.Require().NoError(err)
	engine, err := service.New(s.txns, s.txns, s.refs, catalog, s.assigner,
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithNotifier(notifytest.NewRecorder()),
	)
	s.Require().NoError(err)
	s.engine = engine
}

func (s *EngineFailureSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *EngineFailureSuite) TestNewRequiresCollaborators() {
	_, err := service.New(nil, s.txns, s.refs, nil, s.assigner)
	s.Error(err)
}

func (s *EngineFailureSuite) TestSequenceUnavailableStoresNothing() {
	s.assigner.EXPECT().Assign(gomock.Any(), gomock.Any(), s.creator).Return(&catalogmodels.Workflow{}, nil)
	s.refs.EXPECT().Generate(gomock.Any(), id.CategoryPurchaseRequest, "GF", false).
		Return("", dErrors.Wrap(errors.New("connection refused"), dErrors.CodeSequenceUnavailable, "reference sequence unavailable"))

	_, err := s.engine.Create(s.ctx, s.creator, service.CreateRequest{Category: id.CategoryPurchaseRequest, FundType: "GF"})
	s.True(dErrors.HasCode(err, dErrors.CodeSequenceUnavailable))

	left, err := s.txns.ListWithoutWorkflow(s.ctx, id.TransactionID{}, 10)
	s.Require().NoError(err)
	s.Empty(left)
}

// officeRemovedStore rejects inserts the way a foreign key on a deleted
// office would.
type officeRemovedStore struct {
	*store.InMemory
}

func (officeRemovedStore) Create(context.Context, *models.Transaction) error {
	return fmt.Errorf("insert transaction: %w", sentinel.ErrMissingReference)
}

func (s *EngineFailureSuite) TestMissingReferenceOnWriteIsInvalidInput() {
	catalog, err := catalogservice.New(s.offices)
	s.Require().NoError(err)
	engine, err := service.New(officeRemovedStore{s.txns}, s.txns, s.refs, catalog, s.assigner,
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	s.assigner.EXPECT().Assign(gomock.Any(), gomock.Any(), s.creator).Return(&catalogmodels.Workflow{}, nil)
	s.refs.EXPECT().Generate(gomock.Any(), id.CategoryPurchaseOrder, "", false).Return("PO-2025-000001", nil)

	_, err = engine.Create(s.ctx, s.creator, service.CreateRequest{Category: id.CategoryPurchaseOrder})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), err.Error())
	s.Equal(service.ReasonUnknownOffice, dErrors.ReasonOf(err))
}

func (s *EngineFailureSuite) TestMisconfigurationSkipsGenerator() {
	s.assigner.EXPECT().Assign(gomock.Any(), gomock.Any(), s.creator).
		Return(nil, dErrors.NewWithReason(dErrors.CodeWorkflowMisconfigured, "no_active_workflow", "no active workflow"))

	_, err := s.engine.Create(s.ctx, s.creator, service.CreateRequest{Category: id.CategoryPurchaseOrder})
	s.True(dErrors.HasCode(err, dErrors.CodeWorkflowMisconfigured))
	s.Equal("no_active_workflow", dErrors.ReasonOf(err))
}

func (s *EngineFailureSuite) TestMissingWorkflowSurfacesAsMisconfiguration() {
	txn, err := models.NewTransaction(id.NewTransactionID(), id.CategoryPurchaseOrder, "", s.creator, nil, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(txn.AttachReferenceNumber("PO-2025-000042"))
	step := id.NewStepID()
	received := time.Now()
	txn.ApplyAssignment(id.NewWorkflowID(), &step, s.creator.OfficeID, &s.creator.UserID, &received, time.Now())
	s.Require().NoError(s.txns.Create(s.ctx, txn))

	_, err = s.engine.Endorse(s.ctx, s.creator, txn.ID, s.creator.OfficeID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeWorkflowMisconfigured))
}
