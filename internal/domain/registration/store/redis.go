package store

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"vitarp-go/internal/domain/registration/model"
	"vitarp-go/internal/platform/errors"
)

// redisBackend keeps credentials under <prefix>host:<host-id> with an
// <prefix>ip:<ip> index so lookups by address stay O(1).
type redisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed credentials store.
func NewRedis(cfg Config) (Backend, error) {
	if cfg.Redis == nil || cfg.Redis.Addr == "" {
		return nil, errors.New(errors.KindInvalidParam, "regstore.redis", "redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(errors.KindNetwork, "regstore.redis", "redis ping failed", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "vitarp:regist:"
	}
	return &redisBackend{client: client, prefix: prefix}, nil
}

func (b *redisBackend) hostKey(hostID string) string { return b.prefix + "host:" + hostID }
func (b *redisBackend) ipKey(ip string) string       { return b.prefix + "ip:" + ip }

// storedCredentials is the wire form; array secrets serialize fine as JSON.
type storedCredentials struct {
	model.Credentials
}

func (b *redisBackend) Save(ctx context.Context, creds model.Credentials) error {
	data, err := sonic.Marshal(storedCredentials{creds})
	if err != nil {
		return errors.Wrap(errors.KindInvalidData, "regstore.save", "encode credentials", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.hostKey(creds.HostID), data, 0)
	pipe.Set(ctx, b.ipKey(creds.IP), creds.HostID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(errors.KindIO, "regstore.save", "store credentials", err)
	}
	return nil
}

func (b *redisBackend) GetByIP(ctx context.Context, ip string) (model.Credentials, error) {
	hostID, err := b.client.Get(ctx, b.ipKey(ip)).Result()
	if err == redis.Nil {
		return model.Credentials{}, errors.New(errors.KindNotFound, "regstore.get",
			"no registration for "+ip)
	}
	if err != nil {
		return model.Credentials{}, errors.Wrap(errors.KindIO, "regstore.get", "read ip index", err)
	}

	raw, err := b.client.Get(ctx, b.hostKey(hostID)).Bytes()
	if err == redis.Nil {
		// Dangling index; clean it up and report absent.
		_ = b.client.Del(ctx, b.ipKey(ip)).Err()
		return model.Credentials{}, errors.New(errors.KindNotFound, "regstore.get",
			"no registration for "+ip)
	}
	if err != nil {
		return model.Credentials{}, errors.Wrap(errors.KindIO, "regstore.get", "read credentials", err)
	}

	var stored storedCredentials
	if err := sonic.Unmarshal(raw, &stored); err != nil {
		return model.Credentials{}, errors.Wrap(errors.KindInvalidData, "regstore.get",
			"decode credentials", err)
	}
	return stored.Credentials, nil
}

func (b *redisBackend) DeleteByIP(ctx context.Context, ip string) error {
	hostID, err := b.client.Get(ctx, b.ipKey(ip)).Result()
	if err == redis.Nil {
		return errors.New(errors.KindNotFound, "regstore.delete", "no registration for "+ip)
	}
	if err != nil {
		return errors.Wrap(errors.KindIO, "regstore.delete", "read ip index", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.hostKey(hostID))
	pipe.Del(ctx, b.ipKey(ip))
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(errors.KindIO, "regstore.delete", "delete credentials", err)
	}
	return nil
}

func (b *redisBackend) List(ctx context.Context) ([]model.Credentials, error) {
	var cursor uint64
	out := make([]model.Credentials, 0)
	pattern := b.prefix + "host:*"
	for {
		keys, next, err := b.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, "regstore.list", "scan credentials", err)
		}
		for _, key := range keys {
			raw, err := b.client.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			var stored storedCredentials
			if err := sonic.Unmarshal(raw, &stored); err == nil {
				out = append(out, stored.Credentials)
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return out, nil
}

func (b *redisBackend) Close(context.Context) error {
	return b.client.Close()
}
