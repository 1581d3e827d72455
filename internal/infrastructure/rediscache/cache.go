package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"provindex/internal/application"

	"github.com/redis/go-redis/v9"
)

const (
	runCacheVersionKey = "provindex:runs:version"
	runCacheKeyPrefix  = "provindex:runs:v"
	defaultCacheTTL    = time.Minute
)

type Config struct {
	Addr string
	TTL  time.Duration
}

// ReportStore caches run report listings in Redis in front of another store. Keys embed a
// version counter that every write bumps.
type ReportStore struct {
	application.ReportStore
	cache *redis.Client
	ttl   time.Duration
}

// New wraps base. With an empty address the returned store passes everything through.
func New(base application.ReportStore, cfg Config) (*ReportStore, error) {
	if base == nil {
		return nil, errors.New("base report store is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return &ReportStore{ReportStore: base}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewWithClient(base, client, cfg.TTL), nil
}

func NewWithClient(base application.ReportStore, client *redis.Client, ttl time.Duration) *ReportStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &ReportStore{ReportStore: base, cache: client, ttl: ttl}
}

func (s *ReportStore) StoreRun(ctx context.Context, report application.RunReport) error {
	if err := s.ReportStore.StoreRun(ctx, report); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *ReportStore) ListRuns(ctx context.Context, filter application.RunQueryFilter) ([]application.RunReport, error) {
	if s.cache == nil {
		return s.ReportStore.ListRuns(ctx, filter)
	}
	version, ok := s.cacheVersion(ctx)
	if !ok {
		return s.ReportStore.ListRuns(ctx, filter)
	}
	key := runCacheKey(version, filter)
	if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
		var reports []application.RunReport
		if err := json.Unmarshal([]byte(cached), &reports); err == nil {
			return reports, nil
		}
	}

	reports, err := s.ReportStore.ListRuns(ctx, filter)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(reports)
	if err != nil {
		return reports, nil
	}
	if err := s.cache.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		slog.Debug("run cache write failed", "key", key, "err", err)
	}
	return reports, nil
}

func (s *ReportStore) Ping(ctx context.Context) error {
	if err := s.ReportStore.Ping(ctx); err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx).Err()
}

func (s *ReportStore) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

func (s *ReportStore) cacheVersion(ctx context.Context) (string, bool) {
	version, err := s.cache.Get(ctx, runCacheVersionKey).Result()
	if err == nil {
		return version, true
	}
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	return "", false
}

func (s *ReportStore) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, runCacheVersionKey).Err(); err != nil {
		slog.Warn("run cache invalidation failed", "err", err)
	}
}

func runCacheKey(version string, filter application.RunQueryFilter) string {
	var b strings.Builder
	b.Grow(48)
	b.WriteString(runCacheKeyPrefix)
	b.WriteString(version)
	b.WriteString(":limit=")
	b.WriteString(strconv.Itoa(filter.Limit))
	return b.String()
}
