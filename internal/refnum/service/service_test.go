package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks SequenceStore

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

	"proctrack/internal/refnum/metrics"
	"proctrack/internal/refnum/models"
	"proctrack/internal/refnum/service/mocks"
	"proctrack/internal/refnum/store"
	id "proctrack/pkg/domain"
	dErrors "proctrack/pkg/domain-errors"
	"proctrack/pkg/platform/sentinel"
	"proctrack/pkg/requestcontext"
)

// =============================================================================
// Generator Test Suite
// =============================================================================
// The generator owns the number format and the failure contract. Counter
// atomicity is exercised against the in-memory store here and against
// PostgreSQL in the store integration tests.

type GeneratorSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStore *mocks.MockSequenceStore
	metrics   *metrics.Metrics
	ctx       context.Context
	logger    *slog.Logger
}

func TestGeneratorSuite(t *testing.T) {
	suite.Run(t, new(GeneratorSuite))
}

func (s *GeneratorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockSequenceStore(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2025, time.July, 14, 9, 30, 0, 0, time.UTC))
}

func (s *GeneratorSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *GeneratorSuite) newGenerator(st SequenceStore) *Generator {
	g, err := New(st, WithLogger(s.logger), WithMetrics(s.metrics))
	s.Require().NoError(err)
	return g
}

func (s *GeneratorSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil)
		s.Error(err)
		s.Contains(err.Error(), "sequence store is required")
	})

	s.Run("defaults are applied", func() {
		g, err := New(s.mockStore)
		s.Require().NoError(err)
		s.Equal(time.UTC, g.location)
		s.Equal(2*time.Second, g.lockTimeout)
		s.NotNil(g.logger)
	})
}

func (s *GeneratorSuite) TestFormats() {
	g := s.newGenerator(s.mockStore)

	s.Run("purchase request carries fund type and month", func() {
		s.mockStore.EXPECT().
			Next(gomock.Any(), models.Key{Category: id.CategoryPurchaseRequest, FundType: "GF", Year: 2025, Month: 7}).
			Return(int64(12), nil)

		ref, err := g.Generate(s.ctx, id.CategoryPurchaseRequest, " gf ", false)
		s.Require().NoError(err)
		s.Equal("GF-2025-07-000012", ref)
	})

	s.Run("purchase request continuation is marked", func() {
		s.mockStore.EXPECT().Next(gomock.Any(), gomock.Any()).Return(int64(13), nil)

		ref, err := g.Generate(s.ctx, id.CategoryPurchaseRequest, "GF", true)
		s.Require().NoError(err)
		s.Equal("GF-2025-07-000013-CONT", ref)
	})

	s.Run("purchase order ignores fund type", func() {
		s.mockStore.EXPECT().
			Next(gomock.Any(), models.Key{Category: id.CategoryPurchaseOrder, Year: 2025}).
			Return(int64(1), nil)

		ref, err := g.Generate(s.ctx, id.CategoryPurchaseOrder, "GF", true)
		s.Require().NoError(err)
		s.Equal("PO-2025-000001", ref)
	})

	s.Run("voucher", func() {
		s.mockStore.EXPECT().
			Next(gomock.Any(), models.Key{Category: id.CategoryVoucher, Year: 2025}).
			Return(int64(4521), nil)

		ref, err := g.Generate(s.ctx, id.CategoryVoucher, "", false)
		s.Require().NoError(err)
		s.Equal("VCH-2025-004521", ref)
	})
}

func (s *GeneratorSuite) TestYearFollowsConfiguredLocation() {
	manila, err := time.LoadLocation("Asia/Manila")
	s.Require().NoError(err)
	g, err := New(s.mockStore, WithLocation(manila), WithLogger(s.logger))
	s.Require().NoError(err)

	// 2024-12-31 17:00 UTC is already 2025-01-01 in Manila.
	ctx := requestcontext.WithTime(context.Background(), time.Date(2024, time.December, 31, 17, 0, 0, 0, time.UTC))
	s.mockStore.EXPECT().
		Next(gomock.Any(), models.Key{Category: id.CategoryVoucher, Year: 2025}).
		Return(int64(1), nil)

	ref, err := g.Generate(ctx, id.CategoryVoucher, "", false)
	s.Require().NoError(err)
	s.Equal("VCH-2025-000001", ref)
}

func (s *GeneratorSuite) TestInvalidInputNeverTouchesStore() {
	g := s.newGenerator(s.mockStore)

	s.Run("unknown category", func() {
		_, err := g.Generate(s.ctx, id.Category("XX"), "", false)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("purchase request without fund type", func() {
		_, err := g.Generate(s.ctx, id.CategoryPurchaseRequest, "  ", false)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *GeneratorSuite) TestStoreFailureIsSequenceUnavailable() {
	g := s.newGenerator(s.mockStore)
	s.mockStore.EXPECT().Next(gomock.Any(), gomock.Any()).
		Return(int64(0), fmt.Errorf("%w: row locked", sentinel.ErrLockTimeout))

	ref, err := g.Generate(s.ctx, id.CategoryPurchaseOrder, "", false)
	s.Empty(ref)
	s.True(dErrors.HasCode(err, dErrors.CodeSequenceUnavailable))
	s.True(errors.Is(err, sentinel.ErrLockTimeout))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.FailuresTotal.WithLabelValues("PO")))
}

func (s *GeneratorSuite) TestLockTimeoutBoundsTheStoreCall() {
	g, err := New(s.mockStore, WithLockTimeout(10*time.Millisecond), WithLogger(s.logger))
	s.Require().NoError(err)

	s.mockStore.EXPECT().Next(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ models.Key) (int64, error) {
			deadline, ok := ctx.Deadline()
			s.True(ok, "store call must carry a deadline")
			s.WithinDuration(time.Now().Add(10*time.Millisecond), deadline, 50*time.Millisecond)
			<-ctx.Done()
			return 0, ctx.Err()
		})

	_, err = g.Generate(s.ctx, id.CategoryVoucher, "", false)
	s.True(dErrors.HasCode(err, dErrors.CodeSequenceUnavailable))
}

func (s *GeneratorSuite) TestHundredSequentialCalls() {
	g := s.newGenerator(store.NewInMemory())

	for i := 1; i <= 100; i++ {
		ref, err := g.Generate(s.ctx, id.CategoryPurchaseOrder, "", false)
		s.Require().NoError(err)
		s.Equal(fmt.Sprintf("PO-2025-%06d", i), ref)
	}
	s.Equal(100.0, testutil.ToFloat64(s.metrics.IssuedTotal.WithLabelValues("PO")))
}

func (s *GeneratorSuite) TestHundredConcurrentCalls() {
	g := s.newGenerator(store.NewInMemory())

	const callers = 100
	refs := make(chan string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := g.Generate(s.ctx, id.CategoryPurchaseRequest, "SEF", false)
			s.NoError(err)
			refs <- ref
		}()
	}
	wg.Wait()
	close(refs)

	seen := make(map[string]bool, callers)
	for ref := range refs {
		s.False(seen[ref], "duplicate %s", ref)
		seen[ref] = true
	}
	for i := 1; i <= callers; i++ {
		s.True(seen[fmt.Sprintf("SEF-2025-07-%06d", i)], "gap at %d", i)
	}
}
