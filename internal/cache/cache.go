// Package cache реализует кэш балансов VSD поверх Redis.
//
// Кэш необязателен: без настроенного Redis все операции становятся no-op,
// и чтения баланса идут напрямую в БД.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const balanceTTL = 5 * time.Minute

// BalanceCache кэширует балансы пользователей.
// Запись инвалидируется после каждой успешной леджер-транзакции.
type BalanceCache struct {
	client *redis.Client
}

// NewBalanceCache создаёт кэш поверх Redis по указанному адресу.
// Пустой адрес даёт выключенный кэш.
func NewBalanceCache(addr string) *BalanceCache {
	if addr == "" {
		return &BalanceCache{}
	}
	return &BalanceCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func balanceKey(userID string) string {
	return "balance:" + userID
}

// GetBalance возвращает закэшированный баланс пользователя.
// Второй результат false означает промах кэша или выключенный кэш.
func (c *BalanceCache) GetBalance(ctx context.Context, userID string) (int64, bool, error) {
	if c.client == nil {
		return 0, false, nil
	}

	val, err := c.client.Get(ctx, balanceKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("cache get: %w", err)
	}

	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cache parse: %w", err)
	}

	return balance, true, nil
}

// SetBalance сохраняет баланс пользователя в кэше.
func (c *BalanceCache) SetBalance(ctx context.Context, userID string, balance int64) error {
	if c.client == nil {
		return nil
	}

	if err := c.client.Set(ctx, balanceKey(userID), strconv.FormatInt(balance, 10), balanceTTL).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate сбрасывает закэшированный баланс пользователя.
// Вызывается после каждой успешной леджер-транзакции: прежние чтения устаревают.
func (c *BalanceCache) Invalidate(ctx context.Context, userID string) error {
	if c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, balanceKey(userID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (c *BalanceCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
