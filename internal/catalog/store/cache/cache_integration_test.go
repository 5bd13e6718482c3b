//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"proctrack/internal/catalog/models"
	"proctrack/internal/catalog/store"
	"proctrack/internal/catalog/store/cache"
	id "proctrack/pkg/domain"
	"proctrack/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	source *store.InMemory
	cache  *cache.CachedStore
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
}

func (s *RedisCacheSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.redis.FlushAll(ctx))
	s.source = store.NewInMemory()
	s.cache = cache.New(s.source, s.redis.Client, time.Minute, nil)
}

func (s *RedisCacheSuite) saveWorkflow(category id.Category) *models.Workflow {
	wf, err := models.NewWorkflow(id.NewWorkflowID(), category, "route", true, []models.StepSpec{
		{OfficeID: id.NewOfficeID(), ExpectedDays: 2},
		{OfficeID: id.NewOfficeID(), ExpectedDays: 3},
	}, time.Now().UTC())
	s.Require().NoError(err)
	s.Require().NoError(s.source.SaveWorkflow(context.Background(), wf))
	return wf
}

func (s *RedisCacheSuite) TestWorkflowServedFromCacheAfterFirstRead() {
	ctx := context.Background()
	wf := s.saveWorkflow(id.CategoryVoucher)

	first, err := s.cache.FindByID(ctx, wf.ID)
	s.Require().NoError(err)
	s.Equal(wf.Steps, first.Steps)

	// The source no longer knows the workflow; the cache still does.
	s.source = store.NewInMemory()
	cached := cache.New(s.source, s.redis.Client, time.Minute, nil)
	second, err := cached.FindByID(ctx, wf.ID)
	s.Require().NoError(err)
	s.Equal(wf.ID, second.ID)
	s.Equal(wf.Steps, second.Steps)
}

func (s *RedisCacheSuite) TestActiveListInvalidation() {
	ctx := context.Background()
	wf := s.saveWorkflow(id.CategoryPurchaseOrder)

	got, err := s.cache.ListActiveByCategory(ctx, id.CategoryPurchaseOrder)
	s.Require().NoError(err)
	s.Require().Len(got, 1)

	s.Require().NoError(s.source.SetActive(ctx, wf.ID, false))
	got, err = s.cache.ListActiveByCategory(ctx, id.CategoryPurchaseOrder)
	s.Require().NoError(err)
	s.Len(got, 1, "stale until invalidated or expired")

	s.Require().NoError(s.cache.InvalidateActive(ctx, id.CategoryPurchaseOrder))
	got, err = s.cache.ListActiveByCategory(ctx, id.CategoryPurchaseOrder)
	s.Require().NoError(err)
	s.Empty(got)
}
