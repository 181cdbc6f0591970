package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

// NewRedis stores each record as a zstd-compressed JSON value with a TTL and
// keeps a per-client sorted set (score = creation time) for listing.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "sortvision:archive:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &redisStore{
		client: client,
		ttl:    ttl,
		prefix: prefix,
		enc:    enc,
		dec:    dec,
	}, nil
}

func (s *redisStore) recordKey(scanID string) string {
	return s.prefix + "scan:" + scanID
}

func (s *redisStore) clientKey(clientID string) string {
	return s.prefix + "client:" + clientID
}

func (s *redisStore) Store(ctx context.Context, rec ScanRecord) error {
	if err := validateRecord("archive.redis.store", rec); err != nil {
		return err
	}
	rec = prepare(rec, s.ttl)

	raw, err := sonic.Marshal(rec)
	if err != nil {
		return err
	}
	payload := s.enc.EncodeAll(raw, nil)

	expiry := s.ttl
	if rec.ExpiresAt != nil {
		expiry = time.Until(*rec.ExpiresAt)
		if expiry <= 0 {
			return nil
		}
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(rec.ScanID), payload, expiry)
	pipe.ZAdd(ctx, s.clientKey(rec.ClientID), redis.Z{
		Score:  float64(rec.CreatedAt.UnixNano()),
		Member: rec.ScanID,
	})
	pipe.Expire(ctx, s.clientKey(rec.ClientID), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) Get(ctx context.Context, scanID string) (ScanRecord, error) {
	raw, err := s.client.Get(ctx, s.recordKey(scanID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ScanRecord{}, ErrNotFound
		}
		return ScanRecord{}, err
	}
	return s.decode(raw)
}

func (s *redisStore) decode(payload []byte) (ScanRecord, error) {
	raw, err := s.dec.DecodeAll(payload, nil)
	if err != nil {
		return ScanRecord{}, fmt.Errorf("decompress scan record: %w", err)
	}
	var rec ScanRecord
	if err := sonic.Unmarshal(raw, &rec); err != nil {
		return ScanRecord{}, fmt.Errorf("decode scan record: %w", err)
	}
	return rec, nil
}

func (s *redisStore) ListByClient(ctx context.Context, clientID string, limit int) ([]ScanRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, s.clientKey(clientID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []ScanRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]ScanRecord, 0, len(values))
	var gone []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			gone = append(gone, ids[i])
			continue
		}
		rec, err := s.decode([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if len(gone) > 0 {
		_ = s.client.ZRem(ctx, s.clientKey(clientID), gone...).Err()
	}
	return out, nil
}

// CleanupExpired drops index entries whose records have expired; the records
// themselves expire through their TTL.
func (s *redisStore) CleanupExpired(ctx context.Context) error {
	var cursor uint64
	pattern := s.prefix + "client:*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := s.pruneIndex(ctx, key); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *redisStore) pruneIndex(ctx context.Context, indexKey string) error {
	ids, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return err
	}
	var gone []any
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.recordKey(id)).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			gone = append(gone, id)
		}
	}
	if len(gone) == 0 {
		return nil
	}
	return s.client.ZRem(ctx, indexKey, gone...).Err()
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	total, err := s.countKeys(ctx, s.prefix+"scan:*")
	if err != nil {
		return nil, err
	}
	clients, err := s.countKeys(ctx, s.prefix+"client:*")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":    DriverRedis,
		"total":   total,
		"clients": clients,
		"ttl":     int(s.ttl.Seconds()),
	}, nil
}

func (s *redisStore) countKeys(ctx context.Context, pattern string) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}

func (s *redisStore) Close(context.Context) error {
	s.dec.Close()
	_ = s.enc.Close()
	return s.client.Close()
}
