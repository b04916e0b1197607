package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrTenantNotFound is returned when a caller is not mapped to any tenant.
var ErrTenantNotFound = errors.New("messaging: tenant not found for caller")

// TenantResolver maps a caller to the tenant (clinic user) whose catalog and
// schedule apply to them.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, callerID string) (string, error)
}

// TenantDirectory is a TenantResolver callers can be registered in.
type TenantDirectory interface {
	TenantResolver
	Register(ctx context.Context, callerID, tenantID string) error
}

// MemoryTenantDirectory maps normalized phone numbers to tenant IDs in process.
type MemoryTenantDirectory struct {
	mu      sync.RWMutex
	mapping map[string]string
}

func NewMemoryTenantDirectory(mapping map[string]string) *MemoryTenantDirectory {
	d := &MemoryTenantDirectory{mapping: make(map[string]string, len(mapping))}
	for raw, tenant := range mapping {
		if key := NormalizePhone(raw); key != "" && tenant != "" {
			d.mapping[key] = tenant
		}
	}
	return d
}

func (d *MemoryTenantDirectory) ResolveTenant(_ context.Context, callerID string) (string, error) {
	key := NormalizePhone(callerID)
	if key == "" {
		return "", ErrTenantNotFound
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	tenant, ok := d.mapping[key]
	if !ok {
		return "", ErrTenantNotFound
	}
	return tenant, nil
}

func (d *MemoryTenantDirectory) Register(_ context.Context, callerID, tenantID string) error {
	key := NormalizePhone(callerID)
	tenantID = strings.TrimSpace(tenantID)
	if key == "" || tenantID == "" {
		return fmt.Errorf("messaging: register tenant: caller and tenant are required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mapping[key] = tenantID
	return nil
}

const tenantKeyPrefix = "caller_tenant:"

// RedisTenantDirectory stores caller → tenant mappings in Redis so every
// replica sees registrations.
type RedisTenantDirectory struct {
	client *redis.Client
}

func NewRedisTenantDirectory(client *redis.Client) *RedisTenantDirectory {
	if client == nil {
		panic("messaging: redis client cannot be nil")
	}
	return &RedisTenantDirectory{client: client}
}

func (d *RedisTenantDirectory) ResolveTenant(ctx context.Context, callerID string) (string, error) {
	key := NormalizePhone(callerID)
	if key == "" {
		return "", ErrTenantNotFound
	}
	tenant, err := d.client.Get(ctx, tenantKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTenantNotFound
	}
	if err != nil {
		return "", fmt.Errorf("messaging: resolve tenant: %w", err)
	}
	return tenant, nil
}

func (d *RedisTenantDirectory) Register(ctx context.Context, callerID, tenantID string) error {
	key := NormalizePhone(callerID)
	tenantID = strings.TrimSpace(tenantID)
	if key == "" || tenantID == "" {
		return fmt.Errorf("messaging: register tenant: caller and tenant are required")
	}
	if err := d.client.Set(ctx, tenantKeyPrefix+key, tenantID, 0).Err(); err != nil {
		return fmt.Errorf("messaging: register tenant: %w", err)
	}
	return nil
}

// FallbackResolver answers with a default tenant for unregistered callers.
type FallbackResolver struct {
	inner         TenantResolver
	defaultTenant string
}

func NewFallbackResolver(inner TenantResolver, defaultTenant string) *FallbackResolver {
	return &FallbackResolver{inner: inner, defaultTenant: strings.TrimSpace(defaultTenant)}
}

func (f *FallbackResolver) ResolveTenant(ctx context.Context, callerID string) (string, error) {
	if f.inner != nil {
		tenant, err := f.inner.ResolveTenant(ctx, callerID)
		if err == nil {
			return tenant, nil
		}
		if !errors.Is(err, ErrTenantNotFound) {
			return "", err
		}
	}
	if f.defaultTenant == "" {
		return "", ErrTenantNotFound
	}
	return f.defaultTenant, nil
}
