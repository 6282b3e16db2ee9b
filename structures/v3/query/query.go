package query

import (
	"time"

	"github.com/SevenTV/AiUsage/mongo"
	"github.com/SevenTV/AiUsage/redis"
	"go.uber.org/zap"
)

const defaultUserCacheTTL = 5 * time.Minute

type Query struct {
	mongo  mongo.Instance
	redis  redis.Instance
	logger *zap.Logger

	userCacheTTL time.Duration
}

type Option func(*Query)

// WithUserCacheTTL sets how long fetched users stay in redis. Zero disables the cache.
func WithUserCacheTTL(ttl time.Duration) Option {
	return func(q *Query) { q.userCacheTTL = ttl }
}

// New returns a Query. redisInst may be nil, in which case every lookup goes to mongo.
func New(mongoInst mongo.Instance, redisInst redis.Instance, logger *zap.Logger, opts ...Option) *Query {
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Query{
		mongo:        mongoInst,
		redis:        redisInst,
		logger:       logger,
		userCacheTTL: defaultUserCacheTTL,
	}
	for _, o := range opts {
		o(q)
	}

	return q
}
