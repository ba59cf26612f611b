package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/GOGOSCHNO/assistantai1/internal/pkg/envutil"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

// Ledger records which inbound event IDs have already been handled.
type Ledger interface {
	// Admit returns true and records the id when it has not been seen inside
	// the retention window; false when the event was already recorded.
	Admit(ctx context.Context, eventID string) (bool, error)
	Close() error
}

type ledger struct {
	log       *logger.Logger
	rdb       *goredis.Client
	keyPrefix string
	retention time.Duration
}

func NewLedger(log *logger.Logger) (Ledger, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	prefix := envutil.String("DEDUP_KEY_PREFIX", "wa:event:")
	retentionHours := envutil.Int("DEDUP_RETENTION_HOURS", 24)
	if retentionHours <= 0 {
		retentionHours = 24
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &ledger{
		log:       log.With("client", "DedupLedger"),
		rdb:       rdb,
		keyPrefix: prefix,
		retention: time.Duration(retentionHours) * time.Hour,
	}, nil
}

func (l *ledger) Admit(ctx context.Context, eventID string) (bool, error) {
	if l == nil || l.rdb == nil {
		return false, fmt.Errorf("dedup ledger not initialized")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, fmt.Errorf("missing event id")
	}

	// SET NX is the atomic insert-if-absent; two concurrent deliveries of the
	// same id can never both win. The TTL is the retention window.
	ok, err := l.rdb.SetNX(ctx, l.keyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), l.retention).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return ok, nil
}

func (l *ledger) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}
