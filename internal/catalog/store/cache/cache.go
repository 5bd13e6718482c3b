// Package cache fronts the workflow catalog with Redis.
//
// Workflow definitions and their steps never change once saved, so they are
// cached by id. The set of active workflow ids per category can change when an
// administrator activates a new route; it is cached with a short TTL, which
// bounds how long a deactivated workflow keeps receiving new documents.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"proctrack/internal/catalog/models"
	id "proctrack/pkg/domain"
)

const keyPrefix = "proctrack:catalog:"

// Source is the authoritative catalog store.
type Source interface {
	ListActiveByCategory(ctx context.Context, category id.Category) ([]*models.Workflow, error)
	FindByID(ctx context.Context, workflowID id.WorkflowID) (*models.Workflow, error)
	FindOffice(ctx context.Context, officeID id.OfficeID) (*models.Office, error)
}

// CachedStore is a read-through Source. Redis failures degrade to the
// source; they are logged and never returned.
type CachedStore struct {
	source    Source
	client    *redis.Client
	activeTTL time.Duration
	entityTTL time.Duration
	group     singleflight.Group
	logger    *slog.Logger
}

// New wraps source. activeTTL bounds staleness of the active workflow list.
func New(source Source, client *redis.Client, activeTTL time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{
		source:    source,
		client:    client,
		activeTTL: activeTTL,
		entityTTL: 24 * time.Hour,
		logger:    logger,
	}
}

func workflowKey(workflowID id.WorkflowID) string { return keyPrefix + "workflow:" + workflowID.String() }
func activeKey(category id.Category) string        { return keyPrefix + "active:" + string(category) }
func officeKey(officeID id.OfficeID) string        { return keyPrefix + "office:" + officeID.String() }

func (c *CachedStore) FindByID(ctx context.Context, workflowID id.WorkflowID) (*models.Workflow, error) {
	key := workflowKey(workflowID)
	var wf models.Workflow
	if c.get(ctx, key, &wf) {
		return &wf, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		found, err := c.source.FindByID(ctx, workflowID)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, found, c.entityTTL)
		return found, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneWorkflow(v.(*models.Workflow)), nil
}

func (c *CachedStore) ListActiveByCategory(ctx context.Context, category id.Category) ([]*models.Workflow, error) {
	key := activeKey(category)
	var ids []id.WorkflowID
	if c.get(ctx, key, &ids) {
		out := make([]*models.Workflow, 0, len(ids))
		for _, workflowID := range ids {
			wf, err := c.FindByID(ctx, workflowID)
			if err != nil {
				return nil, err
			}
			out = append(out, wf)
		}
		return out, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		workflows, err := c.source.ListActiveByCategory(ctx, category)
		if err != nil {
			return nil, err
		}
		ids := make([]id.WorkflowID, 0, len(workflows))
		for _, wf := range workflows {
			ids = append(ids, wf.ID)
			c.set(ctx, workflowKey(wf.ID), wf, c.entityTTL)
		}
		c.set(ctx, key, ids, c.activeTTL)
		return workflows, nil
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]*models.Workflow)
	out := make([]*models.Workflow, 0, len(shared))
	for _, wf := range shared {
		out = append(out, cloneWorkflow(wf))
	}
	return out, nil
}

func (c *CachedStore) FindOffice(ctx context.Context, officeID id.OfficeID) (*models.Office, error) {
	key := officeKey(officeID)
	var office models.Office
	if c.get(ctx, key, &office) {
		return &office, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		found, err := c.source.FindOffice(ctx, officeID)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, found, c.entityTTL)
		return found, nil
	})
	if err != nil {
		return nil, err
	}
	copied := *v.(*models.Office)
	return &copied, nil
}

// InvalidateActive drops the cached active list for category.
func (c *CachedStore) InvalidateActive(ctx context.Context, category id.Category) error {
	if err := c.client.Del(ctx, activeKey(category)).Err(); err != nil {
		return fmt.Errorf("invalidate active workflows: %w", err)
	}
	return nil
}

func (c *CachedStore) get(ctx context.Context, key string, dst any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.WarnContext(ctx, "catalog cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.WarnContext(ctx, "catalog cache entry unreadable", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedStore) set(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.WarnContext(ctx, "catalog cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "catalog cache write failed", "key", key, "error", err)
	}
}

func cloneWorkflow(wf *models.Workflow) *models.Workflow {
	copied := *wf
	copied.Steps = append([]models.Step(nil), wf.Steps...)
	return &copied
}
