package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tillpos/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CartRepository stores in-progress carts in Redis, keyed by operator.
// Carts are scratch state: they expire after the configured TTL and are
// deleted outright after a successful checkout.
type CartRepository interface {
	Get(ctx context.Context, operatorID uuid.UUID) (*model.Cart, error)
	Save(ctx context.Context, cart *model.Cart) error
	Delete(ctx context.Context, operatorID uuid.UUID) error
}

type cartRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCartRepository(rdb *redis.Client, ttl time.Duration) CartRepository {
	return &cartRepo{rdb: rdb, ttl: ttl}
}

func cartKey(operatorID uuid.UUID) string { return "cart:" + operatorID.String() }

// Get returns the operator's cart, or a fresh empty one when none is stored.
func (r *cartRepo) Get(ctx context.Context, operatorID uuid.UUID) (*model.Cart, error) {
	raw, err := r.rdb.Get(ctx, cartKey(operatorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.NewCart(operatorID), nil
	}
	if err != nil {
		return nil, err
	}
	var cart model.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepo) Save(ctx context.Context, cart *model.Cart) error {
	cart.UpdatedAt = time.Now()
	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, cartKey(cart.OperatorID), data, r.ttl).Err()
}

func (r *cartRepo) Delete(ctx context.Context, operatorID uuid.UUID) error {
	return r.rdb.Del(ctx, cartKey(operatorID)).Err()
}
