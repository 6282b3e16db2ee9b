package gql

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/SevenTV/AiUsage/auth"
	"github.com/graphql-go/graphql"
)

// Authorizer decides whether the request in ctx may use ability on subject.
type Authorizer interface {
	Authorize(ctx context.Context, ability auth.Ability, subject any) error
}

type FieldSpec struct {
	Name        string
	Type        graphql.Output
	Description string
	Args        graphql.FieldConfigArgument
	// Authorize is checked before Resolve runs.
	Authorize auth.Ability
	// Subject picks the authorization subject. Defaults to the parent value.
	Subject func(p graphql.ResolveParams) (any, error)
	Resolve graphql.FieldResolveFn
}

type ObjectSpec struct {
	Name        string
	Description string
	// AuthorizedInParent marks a type that performs no checks of its own. Every field returning it
	// must be authorized, or belong to a type that is itself only reachable through one.
	AuthorizedInParent bool
	Fields             []FieldSpec
}

type objectEntry struct {
	spec   ObjectSpec
	file   string
	object *graphql.Object
}

// Registry collects the schema's types by explicit registration.
type Registry struct {
	authorizer Authorizer
	objects    map[string]*objectEntry
	order      []string
	types      []graphql.Type
}

func NewRegistry(authorizer Authorizer) *Registry {
	return &Registry{
		authorizer: authorizer,
		objects:    map[string]*objectEntry{},
	}
}

// Object registers an object type. Its fields are resolved lazily, so Extend may still add to it
// until the schema is built.
func (r *Registry) Object(spec ObjectSpec) *graphql.Object {
	if _, ok := r.objects[spec.Name]; ok {
		panic(fmt.Sprintf("gql: object %s registered twice", spec.Name))
	}

	entry := &objectEntry{spec: spec, file: callerFile()}
	entry.object = graphql.NewObject(graphql.ObjectConfig{
		Name:        spec.Name,
		Description: spec.Description,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fields := graphql.Fields{}
			for _, f := range entry.spec.Fields {
				fields[f.Name] = &graphql.Field{
					Name:        f.Name,
					Type:        f.Type,
					Description: f.Description,
					Args:        f.Args,
					Resolve:     r.resolver(f),
				}
			}

			return fields
		}),
	})

	r.objects[spec.Name] = entry
	r.order = append(r.order, spec.Name)

	return entry.object
}

// Extend appends fields to an already registered object.
func (r *Registry) Extend(name string, fields ...FieldSpec) {
	entry, ok := r.objects[name]
	if !ok {
		panic(fmt.Sprintf("gql: cannot extend unknown object %s", name))
	}

	entry.spec.Fields = append(entry.spec.Fields, fields...)
}

// Type registers a non-object type (enum, scalar) so the schema carries it.
func (r *Registry) Type(t graphql.Type) {
	r.types = append(r.types, t)
}

func (r *Registry) Lookup(name string) (*graphql.Object, bool) {
	entry, ok := r.objects[name]
	if !ok {
		return nil, false
	}

	return entry.object, true
}

// Build assembles the schema rooted at the Query object.
func (r *Registry) Build() (graphql.Schema, error) {
	query, ok := r.Lookup("Query")
	if !ok {
		return graphql.Schema{}, fmt.Errorf("gql: no Query object registered")
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: query,
		Types: r.types,
	})
}

func (r *Registry) resolver(f FieldSpec) graphql.FieldResolveFn {
	resolve := f.Resolve
	if resolve == nil {
		resolve = graphql.DefaultResolveFn
	}
	if f.Authorize == "" {
		return resolve
	}

	ability := f.Authorize
	return func(p graphql.ResolveParams) (interface{}, error) {
		subject := p.Source
		if f.Subject != nil {
			s, err := f.Subject(p)
			if err != nil {
				return nil, err
			}
			subject = s
		}

		if err := r.authorizer.Authorize(p.Context, ability, subject); err != nil {
			return nil, err
		}

		return resolve(p)
	}
}

func callerFile() string {
	_, file, _, ok := runtime.Caller(2)
	if !ok {
		return ""
	}

	return filepath.Base(file)
}
