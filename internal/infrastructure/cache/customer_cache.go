package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dbanking/onboarding/internal/domain/customer"
	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultCustomerTTL is the longest a cached customer lives, however often
// it is read
const DefaultCustomerTTL = 30 * time.Minute

// Lookup results reported to LookupMetrics
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// LookupMetrics receives the outcome of each cache lookup
type LookupMetrics interface {
	RecordCacheLookup(ctx context.Context, result string)
}

type noopLookupMetrics struct{}

func (noopLookupMetrics) RecordCacheLookup(context.Context, string) {}

// IDKey is the cache key of a customer by id
func IDKey(id uuid.UUID) string { return "customer:" + id.String() }

// EmailKey is the cache key of a customer by normalized email
func EmailKey(email string) string { return "customer:email:" + customer.NormalizeEmail(email) }

// PhoneKey is the cache key of a customer by phone
func PhoneKey(phone string) string { return "customer:phone:" + customer.NormalizePhone(phone) }

// KeysFor returns every key under which c may be cached
func KeysFor(c *customer.Customer) []string {
	keys := []string{IDKey(c.ID), EmailKey(c.Email)}
	if c.Phone != "" {
		keys = append(keys, PhoneKey(c.Phone))
	}
	return keys
}

// cachedCustomer is the stored form of a customer
type cachedCustomer struct {
	ID             uuid.UUID       `json:"id"`
	FirstName      string          `json:"firstName"`
	LastName       string          `json:"lastName"`
	DateOfBirth    string          `json:"dob"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone,omitempty"`
	Status         customer.Status `json:"status"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      *time.Time      `json:"updatedAt,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

// CustomerCache is a read-through cache of customers keyed by id, email and
// phone. Every key holds the full record, so any change must invalidate all
// of them (see KeysFor).
type CustomerCache struct {
	cache   shared.Cache
	expiry  shared.Expiry
	metrics LookupMetrics
}

// NewCustomerCache creates a customer cache. Entries expire sliding after
// their last read and never later than ttl after they were written; a zero
// sliding gives every entry the fixed ttl. A non-positive ttl selects
// DefaultCustomerTTL.
func NewCustomerCache(cache shared.Cache, ttl, sliding time.Duration) *CustomerCache {
	if ttl <= 0 {
		ttl = DefaultCustomerTTL
	}
	if sliding < 0 || sliding > ttl {
		sliding = 0
	}
	return &CustomerCache{
		cache:   cache,
		expiry:  shared.Expiry{TTL: ttl, Sliding: sliding},
		metrics: noopLookupMetrics{},
	}
}

// WithMetrics sets the lookup metrics sink
func (c *CustomerCache) WithMetrics(m LookupMetrics) *CustomerCache {
	if m != nil {
		c.metrics = m
	}
	return c
}

// Get looks a customer up under key
func (c *CustomerCache) Get(ctx context.Context, key string) (*customer.Customer, bool, error) {
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.metrics.RecordCacheLookup(ctx, LookupError)
		return nil, false, err
	}
	if !ok {
		c.metrics.RecordCacheLookup(ctx, LookupMiss)
		return nil, false, nil
	}

	var cc cachedCustomer
	if err := json.Unmarshal(data, &cc); err != nil {
		// An unreadable entry is dropped and treated as a miss.
		if err := c.cache.Invalidate(ctx, key); err != nil {
			logger.L(ctx).Warn("dropping unreadable customer cache entry failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		c.metrics.RecordCacheLookup(ctx, LookupMiss)
		return nil, false, nil
	}
	c.metrics.RecordCacheLookup(ctx, LookupHit)
	return cc.toDomain(), true, nil
}

// Put stores cust under all of its keys
func (c *CustomerCache) Put(ctx context.Context, cust *customer.Customer) error {
	data, err := json.Marshal(fromDomain(cust))
	if err != nil {
		return err
	}
	for _, key := range KeysFor(cust) {
		if err := c.cache.Set(ctx, key, data, c.expiry); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate removes the given keys
func (c *CustomerCache) Invalidate(ctx context.Context, keys ...string) error {
	return c.cache.Invalidate(ctx, keys...)
}

func fromDomain(c *customer.Customer) cachedCustomer {
	return cachedCustomer{
		ID:             c.ID,
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		DateOfBirth:    c.DateOfBirth.Format(customer.DateLayout),
		Email:          c.Email,
		Phone:          c.Phone,
		Status:         c.Status,
		Version:        c.Version,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		IdempotencyKey: c.IdempotencyKey,
	}
}

func (cc cachedCustomer) toDomain() *customer.Customer {
	dob, _ := time.Parse(customer.DateLayout, cc.DateOfBirth)
	c := &customer.Customer{
		FirstName:      cc.FirstName,
		LastName:       cc.LastName,
		DateOfBirth:    dob,
		Email:          cc.Email,
		Phone:          cc.Phone,
		Status:         cc.Status,
		UpdatedAt:      cc.UpdatedAt,
		IdempotencyKey: cc.IdempotencyKey,
	}
	c.ID = cc.ID
	c.CreatedAt = cc.CreatedAt
	c.Version = cc.Version
	return c
}
