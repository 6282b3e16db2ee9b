package gql

import (
	"context"

	"github.com/SevenTV/AiUsage/structures/v3"
	"github.com/SevenTV/AiUsage/structures/v3/query"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"
)

// EventSource lists the AI usage events of a namespace.
type EventSource interface {
	AiUsageEvents(ctx context.Context, opt query.AiUsageEventsOptions) ([]structures.AiUsageEvent, error)
}

type Resolver struct {
	events EventSource
	logger *zap.Logger
}

func NewResolver(events EventSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		events: events,
		logger: logger,
	}
}

// Register adds every type served by the resolver to reg.
func (r *Resolver) Register(reg *Registry) {
	reg.Type(Time)
	reg.Type(AiUsageEventType)

	user := r.registerUser(reg)
	event := r.registerAiUsageEvent(reg, user)
	data := r.registerAiUsageData(reg, event)
	r.registerQuery(reg, data)
}

// NewSchema registers the resolver on a fresh registry and builds the schema. The registry is
// returned so callers can audit it.
func NewSchema(r *Resolver, authorizer Authorizer) (graphql.Schema, *Registry, error) {
	reg := NewRegistry(authorizer)
	r.Register(reg)

	schema, err := reg.Build()
	if err != nil {
		return graphql.Schema{}, nil, err
	}

	return schema, reg, nil
}
