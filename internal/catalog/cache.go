package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
	"github.com/joao-fontenele/orderflow-platform/internal/telemetry"
)

type Resolver interface {
	Resolve(ctx context.Context, productID string) (*domain.Product, error)
}

// CachedResolver remembers the last product seen for each id and serves it
// when the catalog cannot be reached. Not-found answers are never masked.
type CachedResolver struct {
	next   Resolver
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedResolver(next Resolver, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedResolver) Resolve(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := c.next.Resolve(ctx, productID)
	if err == nil {
		c.remember(ctx, product)
		return product, nil
	}

	if errors.Is(err, domain.ErrProductNotFound) {
		return nil, err
	}

	cached, cacheErr := c.lastKnown(ctx, productID)
	if cacheErr != nil {
		c.logger.WarnContext(ctx, "failed to read price cache", "error", cacheErr, "product_id", productID)
		return nil, err
	}
	if cached == nil {
		return nil, err
	}

	telemetry.RecordDegradedRead(ctx, "pricing_cache")
	c.logger.WarnContext(ctx, "catalog unavailable, using last known price",
		"error", err,
		"product_id", productID,
		"price", cached.Price.String(),
	)
	return cached, nil
}

func (c *CachedResolver) remember(ctx context.Context, product *domain.Product) {
	data, err := json.Marshal(product)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(product.ID), data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "failed to write price cache", "error", err, "product_id", product.ID)
	}
}

func (c *CachedResolver) lastKnown(ctx context.Context, productID string) (*domain.Product, error) {
	data, err := c.client.Get(ctx, cacheKey(productID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var product domain.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func cacheKey(productID string) string {
	return "catalog:product:" + productID
}
