package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"school-approval-service/internal/models"
	"school-approval-service/internal/repository"
)

// ScopeCache is a read-through Redis cache in front of the staff
// directory. Scope checks run on every transition, so staff and
// department rows are cached with a short TTL. When Redis is
// unreachable the cache degrades to passthrough.
type ScopeCache struct {
	client *redis.Client
	source repository.StaffDirectory
	ttl    time.Duration
}

// NewScopeCache creates a scope cache over the given directory. A
// failed ping leaves the client nil and every lookup goes to source.
func NewScopeCache(addr, password string, db int, ttl time.Duration, source repository.StaffDirectory) *ScopeCache {
	if addr == "" {
		return &ScopeCache{source: source, ttl: ttl}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return &ScopeCache{source: source, ttl: ttl}
	}

	return &ScopeCache{client: client, source: source, ttl: ttl}
}

// GetStaffByID implements repository.StaffDirectory
func (c *ScopeCache) GetStaffByID(ctx context.Context, id uuid.UUID) (*models.Staff, error) {
	key := fmt.Sprintf("scope:staff:%s", id)

	if cached, ok := getCached[models.Staff](ctx, c.client, key); ok {
		return cached, nil
	}

	staff, err := c.source.GetStaffByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.setCached(ctx, key, staff)
	return staff, nil
}

// GetDepartmentByID implements repository.StaffDirectory
func (c *ScopeCache) GetDepartmentByID(ctx context.Context, id uuid.UUID) (*models.Department, error) {
	key := fmt.Sprintf("scope:department:%s", id)

	if cached, ok := getCached[models.Department](ctx, c.client, key); ok {
		return cached, nil
	}

	dept, err := c.source.GetDepartmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.setCached(ctx, key, dept)
	return dept, nil
}

// ListActiveStaffByRole implements repository.StaffDirectory
func (c *ScopeCache) ListActiveStaffByRole(ctx context.Context, role models.StaffRole) ([]models.Staff, error) {
	key := fmt.Sprintf("scope:role:%s", role)

	if cached, ok := getCached[[]models.Staff](ctx, c.client, key); ok {
		return *cached, nil
	}

	staff, err := c.source.ListActiveStaffByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	c.setCached(ctx, key, staff)
	return staff, nil
}

func getCached[T any](ctx context.Context, client *redis.Client, key string) (*T, bool) {
	if client == nil {
		return nil, false
	}
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, false
	}
	return &value, true
}

func (c *ScopeCache) setCached(ctx context.Context, key string, value interface{}) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	// Best effort - a failed write only costs the next lookup
	_ = c.client.Set(ctx, key, data, c.ttl).Err()
}
