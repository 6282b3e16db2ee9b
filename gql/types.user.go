package gql

import (
	"github.com/SevenTV/AiUsage/errors"
	"github.com/SevenTV/AiUsage/structures/v3"
	"github.com/graphql-go/graphql"
)

func userFrom(p graphql.ResolveParams) (*structures.User, error) {
	u, ok := p.Source.(*structures.User)
	if !ok || u == nil {
		return nil, errors.ErrInternalServerError().SetDetail("unexpected user source %T", p.Source)
	}

	return u, nil
}

func (r *Resolver) registerUser(reg *Registry) *graphql.Object {
	return reg.Object(ObjectSpec{
		Name:        "UserCore",
		Description: "Core representation of a user.",
		Fields: []FieldSpec{
			{
				Name:        "id",
				Type:        graphql.NewNonNull(graphql.ID),
				Description: "ID of the user.",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					u, err := userFrom(p)
					if err != nil {
						return nil, err
					}
					return u.ID.Hex(), nil
				},
			},
			{
				Name:        "username",
				Type:        graphql.NewNonNull(graphql.String),
				Description: "Username of the user.",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					u, err := userFrom(p)
					if err != nil {
						return nil, err
					}
					return u.Username, nil
				},
			},
			{
				Name:        "name",
				Type:        graphql.NewNonNull(graphql.String),
				Description: "Human-readable name of the user.",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					u, err := userFrom(p)
					if err != nil {
						return nil, err
					}
					return u.Name(), nil
				},
			},
			{
				Name:        "avatarUrl",
				Type:        graphql.String,
				Description: "URL of the user's avatar.",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					u, err := userFrom(p)
					if err != nil || u.AvatarURL == "" {
						return nil, err
					}
					return u.AvatarURL, nil
				},
			},
		},
	})
}
