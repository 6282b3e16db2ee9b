package dataloader

import "context"

type DataLoader[In comparable, Out any] interface {
	Load(ctx context.Context, key In) (Result[Out], error)
	LoadThunk(key In) func(ctx context.Context) (Result[Out], error)
	LoadAll(ctx context.Context, keys []In) ([]Result[Out], []error)
	LoadAllThunk(keys []In) func(ctx context.Context) ([]Result[Out], []error)
}

var _ DataLoader[string, any] = (*Loader[string, any])(nil)
