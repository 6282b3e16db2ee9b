package auth

import (
	"context"
	"time"

	"github.com/SevenTV/AiUsage/errors"
	"github.com/SevenTV/AiUsage/structures/v3"
	"github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type Ability string

const (
	AbilityReadAiUsage Ability = "read_ai_usage"
)

// RoleSource resolves namespace membership.
type RoleSource interface {
	NamespaceRole(ctx context.Context, namespaceID, userID primitive.ObjectID) (structures.NamespaceRole, error)
}

// Policy decides abilities of the request actor and remembers membership lookups for a short while.
type Policy struct {
	roles  RoleSource
	cache  *cache.Cache
	logger *zap.Logger
}

func NewPolicy(roles RoleSource, ttl time.Duration, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Policy{
		roles:  roles,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// Authorize returns nil when the actor in ctx holds ability on subject.
func (p *Policy) Authorize(ctx context.Context, ability Ability, subject any) error {
	actor := ActorFrom(ctx)
	if actor == nil {
		return errors.ErrUnauthorized()
	}

	switch ability {
	case AbilityReadAiUsage:
		namespaceID, ok := subject.(primitive.ObjectID)
		if !ok || namespaceID.IsZero() {
			return errors.ErrInvalidRequest().SetDetail("read_ai_usage needs a namespace")
		}

		if actor.Admin {
			return nil
		}

		role, err := p.role(ctx, namespaceID, actor.ID)
		if err != nil {
			return err
		}

		if !role.AtLeast(structures.NamespaceRoleReporter) {
			return errors.ErrInsufficientPrivilege().SetDetail("%s", ability)
		}

		return nil
	}

	p.logger.Warn("auth, unknown ability", zap.String("ability", string(ability)))

	return errors.ErrInsufficientPrivilege().SetDetail("unknown ability %s", ability)
}

func (p *Policy) role(ctx context.Context, namespaceID, userID primitive.ObjectID) (structures.NamespaceRole, error) {
	key := namespaceID.Hex() + ":" + userID.Hex()
	if v, ok := p.cache.Get(key); ok {
		return v.(structures.NamespaceRole), nil
	}

	role, err := p.roles.NamespaceRole(ctx, namespaceID, userID)
	if err != nil {
		return structures.NamespaceRoleNone, errors.ErrInternalServerError().SetDetail("%s", err.Error())
	}

	p.cache.SetDefault(key, role)

	return role, nil
}

// Forget drops a cached membership, e.g. after the role changed.
func (p *Policy) Forget(namespaceID, userID primitive.ObjectID) {
	p.cache.Delete(namespaceID.Hex() + ":" + userID.Hex())
}
