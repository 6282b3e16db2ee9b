package gql

import (
	"github.com/SevenTV/AiUsage/errors"
	"github.com/SevenTV/AiUsage/structures/v3"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"
)

// authorizedEvent is the only value AiUsageEvent fields accept. It is created by AiUsageData,
// whose parent field checked read_ai_usage on the event's namespace.
type authorizedEvent struct {
	event structures.AiUsageEvent
}

func eventFrom(p graphql.ResolveParams) (structures.AiUsageEvent, error) {
	ev, ok := p.Source.(authorizedEvent)
	if !ok {
		return structures.AiUsageEvent{}, errors.ErrInsufficientPrivilege().SetDetail("AiUsageEvent must be reached through an authorized parent")
	}

	return ev.event, nil
}

func (r *Resolver) registerAiUsageEvent(reg *Registry, userCore *graphql.Object) *graphql.Object {
	return reg.Object(ObjectSpec{
		Name:               "AiUsageEvent",
		AuthorizedInParent: true,
		Fields: []FieldSpec{
			{
				Name:        "id",
				Type:        graphql.NewNonNull(graphql.ID),
				Description: "ID of the code suggestion event.",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ev, err := eventFrom(p)
					if err != nil {
						return nil, err
					}
					return ev.ID.Hex(), nil
				},
			},
			{
				Name:        "timestamp",
				Type:        graphql.NewNonNull(Time),
				Description: "When the event happened.",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ev, err := eventFrom(p)
					if err != nil {
						return nil, err
					}
					return ev.Timestamp, nil
				},
			},
			{
				Name:        "event",
				Type:        graphql.NewNonNull(AiUsageEventType),
				Description: "Type of the event.",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ev, err := eventFrom(p)
					if err != nil {
						return nil, err
					}
					return ev.Event, nil
				},
			},
			{
				Name:        "user",
				Type:        userCore,
				Description: "User associated with the event.",
				Resolve:     r.aiUsageEventUser,
			},
		},
	})
}

// aiUsageEventUser requests the user from the pass's User loader and hands the engine a thunk.
// graphql-go runs thunks only after every sibling resolver returned, so all events of a list
// share one fetch.
func (r *Resolver) aiUsageEventUser(p graphql.ResolveParams) (interface{}, error) {
	ev, err := eventFrom(p)
	if err != nil {
		return nil, err
	}

	loader, err := UserLoader(p.Context)
	if err != nil {
		return nil, err
	}

	thunk := loader.Request(ev.UserID)
	return func() (interface{}, error) {
		res, err := thunk.Wait(p.Context)
		if err != nil {
			r.logger.Error("gql, user lookup failed",
				zap.String("event_id", ev.ID.Hex()),
				zap.String("user_id", ev.UserID.Hex()),
				zap.Error(err),
			)
			return nil, errors.ErrUpstreamFailure().SetDetail("user lookup failed")
		}
		if !res.Found {
			return nil, errors.ErrUnknownUser().SetDetail("%s", ev.UserID.Hex())
		}

		return res.Value, nil
	}, nil
}
