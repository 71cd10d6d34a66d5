package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cimillas/storefront/services/api/internal/domain"
)

const sharedLookupTimeout = 5 * time.Second

// CustomerSource is the authoritative lookup behind the cache.
type CustomerSource interface {
	FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
}

// CustomerLookup is a cache-aside CustomerSource. Only found customers are
// cached, so a customer created after a miss is visible immediately. Cache
// failures degrade to the source.
type CustomerLookup struct {
	source CustomerSource
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

func NewCustomerLookup(source CustomerSource, cache Cache, ttl time.Duration, logger *zap.Logger) *CustomerLookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomerLookup{source: source, cache: cache, ttl: ttl, logger: logger}
}

type cachedCustomer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (l *CustomerLookup) FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	if c, ok := l.fromCache(ctx, id); ok {
		return c, nil
	}

	// Concurrent misses for one id share a single source lookup. The shared
	// call must not end when the caller that started it goes away.
	v, err, _ := l.group.Do(id, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLookupTimeout)
		defer cancel()
		if c, ok := l.fromCache(ctx, id); ok {
			return c, nil
		}
		c, err := l.source.FindCustomerByID(ctx, id)
		if err != nil || c == nil {
			return c, err
		}
		l.store(ctx, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	c, _ := v.(*domain.Customer)
	if c == nil {
		return nil, nil
	}
	found := *c
	return &found, nil
}

func (l *CustomerLookup) fromCache(ctx context.Context, id string) (*domain.Customer, bool) {
	raw, ok, err := l.cache.Get(ctx, customerKey(id))
	if err != nil {
		l.logger.Warn("customer cache get", zap.String("customer_id", id), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var cc cachedCustomer
	if err := json.Unmarshal([]byte(raw), &cc); err != nil {
		l.logger.Warn("customer cache decode", zap.String("customer_id", id), zap.Error(err))
		return nil, false
	}
	return &domain.Customer{ID: cc.ID, Name: cc.Name, Email: cc.Email, CreatedAt: cc.CreatedAt}, true
}

func (l *CustomerLookup) store(ctx context.Context, c *domain.Customer) {
	raw, err := json.Marshal(cachedCustomer{ID: c.ID, Name: c.Name, Email: c.Email, CreatedAt: c.CreatedAt})
	if err != nil {
		return
	}
	if err := l.cache.Set(ctx, customerKey(c.ID), string(raw), l.ttl); err != nil {
		l.logger.Warn("customer cache set", zap.String("customer_id", c.ID), zap.Error(err))
	}
}

func customerKey(id string) string {
	return "customer:" + id
}
