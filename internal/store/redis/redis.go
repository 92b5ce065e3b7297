package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trackfit/trackfit/internal/store"
	"github.com/trackfit/trackfit/pkg/models"
)

// Redis implements a Redis Store.
type Redis struct {
	client *redis.Client
	conf   Conf
}

// Conf contains Redis configuration fields.
type Conf struct {
	Host      string        `json:"host"`
	Port      int           `json:"port"`
	Username  string        `json:"username"`
	Password  string        `json:"password"`
	DB        int           `json:"db"`
	PoolSize  int           `json:"pool_size"`
	Timeout   time.Duration `json:"timeout"`
	KeyPrefix string        `json:"key_prefix"`

	// If this is set, pending OTP keys are evicted by Redis this long
	// after their expiry. Otherwise they're kept until a verification
	// attempt observes them as expired and deletes them.
	ExpiryGrace time.Duration `json:"expiry_grace"`
}

type otpRecord struct {
	Code      string `redis:"code"`
	Name      string `redis:"name"`
	ExpiresAt int64  `redis:"expires_at"`
}

type sessionRecord struct {
	Email     string `redis:"email"`
	Name      string `redis:"name"`
	CreatedAt int64  `redis:"created_at"`
}

// New returns a Redis implementation of store.
func New(c Conf) *Redis {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "TRACKFIT"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.Host, c.Port),
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  c.Timeout,
		WriteTimeout: c.Timeout,
		ReadTimeout:  c.Timeout,
	})

	return &Redis{
		conf:   c,
		client: client,
	}
}

// Ping checks if Redis server is reachable
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// SetOTP sets a pending OTP against a key, replacing any existing one.
func (r *Redis) SetOTP(ctx context.Context, key string, otp models.PendingOTP) error {
	k := r.makeKey("otp", key)

	// Replace the hash atomically so that a concurrent GetOTP never
	// sees a mix of old and new fields.
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HMSet(ctx, k,
			"code", otp.Code,
			"name", otp.Name,
			"expires_at", otp.ExpiresAt.UnixMilli())

		if r.conf.ExpiryGrace > 0 {
			pipe.PExpireAt(ctx, k, otp.ExpiresAt.Add(r.conf.ExpiryGrace))
		}
		return nil
	})
	return wrapErr(err)
}

// GetOTP returns the pending OTP saved against a key.
func (r *Redis) GetOTP(ctx context.Context, key string) (models.PendingOTP, error) {
	var rec otpRecord
	if err := r.client.HGetAll(ctx, r.makeKey("otp", key)).Scan(&rec); err != nil {
		return models.PendingOTP{}, wrapErr(err)
	}

	// Doesn't exist?
	if rec.Code == "" {
		return models.PendingOTP{}, store.ErrNotExist
	}

	return models.PendingOTP{
		Code:      rec.Code,
		Name:      rec.Name,
		ExpiresAt: time.UnixMilli(rec.ExpiresAt),
	}, nil
}

// DeleteOTP deletes the pending OTP saved against a key.
func (r *Redis) DeleteOTP(ctx context.Context, key string) error {
	return wrapErr(r.client.Del(ctx, r.makeKey("otp", key)).Err())
}

// SetSession records a session against a token.
func (r *Redis) SetSession(ctx context.Context, token string, s models.Session) error {
	err := r.client.HMSet(ctx, r.makeKey("session", token),
		"email", s.Email,
		"name", s.Name,
		"created_at", s.CreatedAt.UnixMilli()).Err()
	return wrapErr(err)
}

// GetSession returns the session recorded against a token.
func (r *Redis) GetSession(ctx context.Context, token string) (models.Session, error) {
	var rec sessionRecord
	if err := r.client.HGetAll(ctx, r.makeKey("session", token)).Scan(&rec); err != nil {
		return models.Session{}, wrapErr(err)
	}

	if rec.Email == "" {
		return models.Session{}, store.ErrNotExist
	}

	return models.Session{
		Email:     rec.Email,
		Name:      rec.Name,
		CreatedAt: time.UnixMilli(rec.CreatedAt),
	}, nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// makeKey makes the Redis key for a record type.
func (r *Redis) makeKey(typ, id string) string {
	return fmt.Sprintf("%s:%s:%s", r.conf.KeyPrefix, typ, id)
}

func wrapErr(err error) error {
	if err == redis.ErrClosed {
		return store.ErrClosed
	}
	return err
}
