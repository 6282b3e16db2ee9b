package gql

import (
	"time"

	"github.com/SevenTV/AiUsage/auth"
	"github.com/SevenTV/AiUsage/errors"
	"github.com/SevenTV/AiUsage/structures/v3"
	"github.com/SevenTV/AiUsage/structures/v3/query"
	"github.com/graphql-go/graphql"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// authorizedNamespace is produced by Query.aiUsageData after read_ai_usage was granted.
type authorizedNamespace struct {
	id primitive.ObjectID
}

func namespaceFrom(p graphql.ResolveParams) (primitive.ObjectID, error) {
	ns, ok := p.Source.(authorizedNamespace)
	if !ok {
		return primitive.NilObjectID, errors.ErrInsufficientPrivilege().SetDetail("AiUsageData must be reached through an authorized parent")
	}

	return ns.id, nil
}

func (r *Resolver) registerAiUsageData(reg *Registry, event *graphql.Object) *graphql.Object {
	events := graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(event)))
	rangeArgs := func(extra graphql.FieldConfigArgument) graphql.FieldConfigArgument {
		args := graphql.FieldConfigArgument{
			"first": &graphql.ArgumentConfig{
				Type:        graphql.Int,
				Description: "Maximum number of events to return.",
			},
			"startDate": &graphql.ArgumentConfig{
				Type:        Time,
				Description: "Only events at or after this time.",
			},
			"endDate": &graphql.ArgumentConfig{
				Type:        Time,
				Description: "Only events at or before this time.",
			},
		}
		for k, v := range extra {
			args[k] = v
		}

		return args
	}

	return reg.Object(ObjectSpec{
		Name:               "AiUsageData",
		Description:        "Usage data for events stored in the AI usage tables.",
		AuthorizedInParent: true,
		Fields: []FieldSpec{
			{
				Name:        "all",
				Type:        events,
				Description: "All AI usage events.",
				Args: rangeArgs(graphql.FieldConfigArgument{
					"events": &graphql.ArgumentConfig{
						Type:        graphql.NewList(graphql.NewNonNull(AiUsageEventType)),
						Description: "Only events of these types.",
					},
				}),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return r.listEvents(p, kindsArg(p.Args["events"]))
				},
			},
			{
				Name:        "codeSuggestionEvents",
				Type:        events,
				Description: "Events related to code suggestions.",
				Args:        rangeArgs(nil),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return r.listEvents(p, structures.CodeSuggestionEventKinds)
				},
			},
		},
	})
}

func (r *Resolver) listEvents(p graphql.ResolveParams, kinds []structures.AiUsageEventKind) (interface{}, error) {
	ns, err := namespaceFrom(p)
	if err != nil {
		return nil, err
	}

	opt := query.AiUsageEventsOptions{
		NamespaceID: ns,
		Kinds:       kinds,
	}
	if first, ok := p.Args["first"].(int); ok {
		if first < 0 {
			return nil, errors.ErrInvalidRequest().SetDetail("first must not be negative")
		}
		opt.Limit = first
	}
	if t, ok := p.Args["startDate"].(time.Time); ok {
		opt.StartDate = &t
	}
	if t, ok := p.Args["endDate"].(time.Time); ok {
		opt.EndDate = &t
	}

	list, err := r.events.AiUsageEvents(p.Context, opt)
	if err != nil {
		return nil, err
	}

	result := make([]authorizedEvent, len(list))
	for i, ev := range list {
		result[i] = authorizedEvent{event: ev}
	}

	return result, nil
}

func kindsArg(v interface{}) []structures.AiUsageEventKind {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}

	kinds := make([]structures.AiUsageEventKind, 0, len(raw))
	for _, k := range raw {
		if kind, ok := k.(structures.AiUsageEventKind); ok {
			kinds = append(kinds, kind)
		}
	}

	return kinds
}

func (r *Resolver) registerQuery(reg *Registry, data *graphql.Object) *graphql.Object {
	return reg.Object(ObjectSpec{
		Name: "Query",
		Fields: []FieldSpec{
			{
				Name:        "aiUsageData",
				Type:        data,
				Description: "AI-related data of a group or project namespace.",
				Args: graphql.FieldConfigArgument{
					"namespaceId": &graphql.ArgumentConfig{
						Type:        graphql.NewNonNull(graphql.ID),
						Description: "ID of the namespace.",
					},
				},
				Authorize: auth.AbilityReadAiUsage,
				Subject:   namespaceArg,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := namespaceArg(p)
					if err != nil {
						return nil, err
					}

					return authorizedNamespace{id: id.(primitive.ObjectID)}, nil
				},
			},
		},
	})
}

func namespaceArg(p graphql.ResolveParams) (any, error) {
	s, _ := p.Args["namespaceId"].(string)

	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return nil, errors.ErrInvalidRequest().SetDetail("bad namespace id").SetFields(errors.Fields{"namespaceId": s})
	}

	return id, nil
}
