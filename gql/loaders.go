package gql

import (
	"context"

	"github.com/SevenTV/AiUsage/dataloader"
	"github.com/SevenTV/AiUsage/errors"
	"github.com/SevenTV/AiUsage/structures/v3"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const EntityUser dataloader.EntityType = "User"

// LoaderFactory opens the batch window of a query pass with every loader the schema uses.
type LoaderFactory struct {
	users dataloader.FetchFunc[primitive.ObjectID, *structures.User]
	opts  []dataloader.Option
}

func NewLoaderFactory(users dataloader.FetchFunc[primitive.ObjectID, *structures.User], opts ...dataloader.Option) *LoaderFactory {
	return &LoaderFactory{
		users: users,
		opts:  opts,
	}
}

func (f *LoaderFactory) NewWindow(ctx context.Context) *dataloader.Window {
	w := dataloader.NewWindow(ctx, f.opts...)
	dataloader.Register(w, EntityUser, f.users)

	return w
}

func UserLoader(ctx context.Context) (*dataloader.Loader[primitive.ObjectID, *structures.User], error) {
	w := dataloader.WindowFrom(ctx)
	if w == nil {
		return nil, errors.ErrInternalServerError().SetDetail("no batch window in context")
	}

	l, ok := dataloader.Of[primitive.ObjectID, *structures.User](w, EntityUser)
	if !ok {
		return nil, errors.ErrInternalServerError().SetDetail("no %s loader in window", EntityUser)
	}

	return l, nil
}
