package gql

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SevenTV/AiUsage/auth"
	"github.com/SevenTV/AiUsage/dataloader"
	"github.com/SevenTV/AiUsage/structures/v3"
	"github.com/SevenTV/AiUsage/structures/v3/query"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"
)

type eventStore struct {
	mu     sync.Mutex
	events []structures.AiUsageEvent
	opts   []query.AiUsageEventsOptions
}

func (s *eventStore) AiUsageEvents(_ context.Context, opt query.AiUsageEventsOptions) ([]structures.AiUsageEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opts = append(s.opts, opt)

	return s.events, nil
}

type userStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*structures.User
	calls [][]primitive.ObjectID
	err   error
}

func (s *userStore) fetch(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*structures.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, append([]primitive.ObjectID(nil), ids...))
	if s.err != nil {
		return nil, s.err
	}

	out := map[primitive.ObjectID]*structures.User{}
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}

	return out, nil
}

func (s *userStore) Calls() [][]primitive.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

type roleSource map[primitive.ObjectID]structures.NamespaceRole

func (r roleSource) NamespaceRole(_ context.Context, _, userID primitive.ObjectID) (structures.NamespaceRole, error) {
	return r[userID], nil
}

type fixture struct {
	schema   graphql.Schema
	registry *Registry
	loaders  *LoaderFactory
	users    *userStore
	events   *eventStore
	ns       primitive.ObjectID
	reporter *structures.User
	guest    *structures.User
	authors  []*structures.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ns:       primitive.NewObjectID(),
		reporter: &structures.User{ID: primitive.NewObjectID(), Username: "reporter"},
		guest:    &structures.User{ID: primitive.NewObjectID(), Username: "guest"},
		authors: []*structures.User{
			{ID: primitive.NewObjectID(), Username: "forsen", DisplayName: "Forsen"},
			{ID: primitive.NewObjectID(), Username: "nymn"},
			{ID: primitive.NewObjectID(), Username: "xqc", AvatarURL: "https://cdn.example.com/xqc.png"},
		},
	}

	f.users = &userStore{users: map[primitive.ObjectID]*structures.User{}}
	for _, u := range append([]*structures.User{f.reporter, f.guest}, f.authors...) {
		f.users.users[u.ID] = u
	}

	f.events = &eventStore{}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	kinds := structures.AiUsageEventKinds
	for i := 0; i < 6; i++ {
		f.events.events = append(f.events.events, structures.AiUsageEvent{
			ID:          primitive.NewObjectID(),
			Timestamp:   base.Add(-time.Duration(i) * time.Minute),
			Event:       kinds[i%len(kinds)],
			UserID:      f.authors[i%len(f.authors)].ID,
			NamespaceID: f.ns,
		})
	}

	logger := zaptest.NewLogger(t)
	policy := auth.NewPolicy(roleSource{
		f.reporter.ID: structures.NamespaceRoleReporter,
		f.guest.ID:    structures.NamespaceRoleGuest,
	}, time.Minute, logger)

	schema, reg, err := NewSchema(NewResolver(f.events, logger), policy)
	require.NoError(t, err)

	f.schema = schema
	f.registry = reg
	f.loaders = NewLoaderFactory(f.users.fetch, dataloader.WithLogger(logger))

	return f
}

func (f *fixture) run(t *testing.T, actor *structures.User, q string, vars map[string]any) *graphql.Result {
	t.Helper()

	w := f.loaders.NewWindow(context.Background())
	defer w.Close()

	ctx := dataloader.WithWindow(context.Background(), w)
	if actor != nil {
		ctx = auth.WithActor(ctx, actor)
	}

	return graphql.Do(graphql.Params{
		Schema:         f.schema,
		RequestString:  q,
		VariableValues: vars,
		Context:        ctx,
	})
}

const allEventsQuery = `query($ns: ID!) {
	aiUsageData(namespaceId: $ns) {
		all {
			id
			timestamp
			event
			user {
				id
				username
				name
				avatarUrl
			}
		}
	}
}`

func eventList(t *testing.T, res *graphql.Result, field string) []map[string]interface{} {
	t.Helper()

	data, ok := res.Data.(map[string]interface{})
	require.True(t, ok, "no data: %v", res.Errors)
	parent, ok := data["aiUsageData"].(map[string]interface{})
	require.True(t, ok, "no aiUsageData: %v", res.Errors)
	raw, ok := parent[field].([]interface{})
	require.True(t, ok)

	list := make([]map[string]interface{}, len(raw))
	for i, v := range raw {
		list[i] = v.(map[string]interface{})
	}

	return list
}

func errorCode(e gqlerrors.FormattedError) interface{} {
	if e.Extensions == nil {
		return nil
	}

	return e.Extensions["code"]
}

func TestEventUsersShareOneFetch(t *testing.T) {
	f := newFixture(t)

	res := f.run(t, f.reporter, allEventsQuery, map[string]any{"ns": f.ns.Hex()})
	require.Empty(t, res.Errors)

	list := eventList(t, res, "all")
	require.Len(t, list, len(f.events.events))

	for i, item := range list {
		ev := f.events.events[i]
		author := f.authors[i%len(f.authors)]

		assert.Equal(t, ev.ID.Hex(), item["id"])
		assert.Equal(t, ev.Timestamp.Format(time.RFC3339Nano), item["timestamp"])
		assert.Equal(t, enumName(ev.Event), item["event"])

		u := item["user"].(map[string]interface{})
		assert.Equal(t, author.ID.Hex(), u["id"])
		assert.Equal(t, author.Username, u["username"])
		assert.Equal(t, author.Name(), u["name"])
	}

	// six events by three authors, one round trip
	calls := f.users.Calls()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []primitive.ObjectID{f.authors[0].ID, f.authors[1].ID, f.authors[2].ID}, calls[0])

	assert.Nil(t, list[1]["user"].(map[string]interface{})["avatarUrl"])
	assert.Equal(t, f.authors[2].AvatarURL, list[2]["user"].(map[string]interface{})["avatarUrl"])
}

func TestPassesDoNotShareWindows(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		res := f.run(t, f.reporter, allEventsQuery, map[string]any{"ns": f.ns.Hex()})
		require.Empty(t, res.Errors)
	}

	assert.Len(t, f.users.Calls(), 2)
}

func TestUnknownUserIsFieldError(t *testing.T) {
	f := newFixture(t)
	delete(f.users.users, f.authors[1].ID)

	res := f.run(t, f.reporter, allEventsQuery, map[string]any{"ns": f.ns.Hex()})
	list := eventList(t, res, "all")
	require.Len(t, list, 6)

	require.Len(t, res.Errors, 2)
	for _, e := range res.Errors {
		assert.Contains(t, e.Message, "unknown user")
		require.Len(t, e.Path, 4)
		assert.Equal(t, "user", e.Path[3])
	}

	assert.Nil(t, list[1]["user"])
	assert.Nil(t, list[4]["user"])
	assert.NotNil(t, list[0]["user"])
	assert.Equal(t, f.events.events[1].ID.Hex(), list[1]["id"])
}

func TestUserFetchFailureFansOut(t *testing.T) {
	f := newFixture(t)
	f.users.err = fmt.Errorf("connection refused")

	res := f.run(t, f.reporter, allEventsQuery, map[string]any{"ns": f.ns.Hex()})
	list := eventList(t, res, "all")
	require.Len(t, list, 6)

	require.Len(t, res.Errors, 6)
	for i, e := range res.Errors {
		assert.Contains(t, e.Message, "upstream failure")
		assert.Equal(t, []interface{}{"aiUsageData", "all", i, "user"}, e.Path)
	}

	for i, item := range list {
		assert.Nil(t, item["user"])
		assert.Equal(t, f.events.events[i].ID.Hex(), item["id"])
	}

	// no retry inside the pass
	assert.Len(t, f.users.Calls(), 1)
}

func TestParentAuthorization(t *testing.T) {
	f := newFixture(t)

	t.Run("anonymous", func(t *testing.T) {
		res := f.run(t, nil, allEventsQuery, map[string]any{"ns": f.ns.Hex()})
		require.Len(t, res.Errors, 1)
		assert.Equal(t, 10401, errorCode(res.Errors[0]))
	})

	t.Run("guest", func(t *testing.T) {
		res := f.run(t, f.guest, allEventsQuery, map[string]any{"ns": f.ns.Hex()})
		require.Len(t, res.Errors, 1)
		assert.Equal(t, 10403, errorCode(res.Errors[0]))
		assert.Equal(t, []interface{}{"aiUsageData"}, res.Errors[0].Path)
	})

	t.Run("bad namespace id", func(t *testing.T) {
		res := f.run(t, f.reporter, allEventsQuery, map[string]any{"ns": "nope"})
		require.Len(t, res.Errors, 1)
		assert.Equal(t, 10400, errorCode(res.Errors[0]))
	})

	t.Run("admin", func(t *testing.T) {
		admin := &structures.User{ID: primitive.NewObjectID(), Admin: true}
		res := f.run(t, admin, allEventsQuery, map[string]any{"ns": f.ns.Hex()})
		assert.Empty(t, res.Errors)
	})

	// denied requests never reached storage
	assert.Len(t, f.events.opts, 1)
}

func TestEventFilters(t *testing.T) {
	f := newFixture(t)

	res := f.run(t, f.reporter, `query($ns: ID!, $start: Time) {
		aiUsageData(namespaceId: $ns) {
			all(first: 2, startDate: $start, events: [TROUBLESHOOT_JOB, REQUEST_DUO_CHAT_RESPONSE]) { id }
			codeSuggestionEvents(first: 5) { id event }
		}
	}`, map[string]any{"ns": f.ns.Hex(), "start": "2024-03-01T00:00:00Z"})
	require.Empty(t, res.Errors)

	require.Len(t, f.events.opts, 2)
	// sibling fields resolve in no fixed order
	all, suggestions := f.events.opts[0], f.events.opts[1]
	if all.Limit != 2 {
		all, suggestions = suggestions, all
	}

	assert.Equal(t, f.ns, all.NamespaceID)
	assert.Equal(t, 2, all.Limit)
	require.NotNil(t, all.StartDate)
	assert.True(t, all.StartDate.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Nil(t, all.EndDate)
	assert.Equal(t, []structures.AiUsageEventKind{
		structures.AiUsageEventKindTroubleshootJob,
		structures.AiUsageEventKindRequestDuoChatResponse,
	}, all.Kinds)

	assert.Equal(t, 5, suggestions.Limit)
	assert.Equal(t, structures.CodeSuggestionEventKinds, suggestions.Kinds)

	// no user field selected, no fetch
	assert.Empty(t, f.users.Calls())
}

func TestDirectAccessIsRejected(t *testing.T) {
	events := &eventStore{events: []structures.AiUsageEvent{{
		ID:     primitive.NewObjectID(),
		Event:  structures.AiUsageEventKindTroubleshootJob,
		UserID: primitive.NewObjectID(),
	}}}

	reg := NewRegistry(auth.NewPolicy(roleSource{}, time.Minute, nil))
	NewResolver(events, nil).Register(reg)

	event, ok := reg.Lookup("AiUsageEvent")
	require.True(t, ok)

	// a field handing out storage values without authorizing
	reg.Extend("Query", FieldSpec{
		Name: "rawEvents",
		Type: graphql.NewList(event),
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			return events.events, nil
		},
	})

	report := reg.CheckAuthorization()
	require.Contains(t, report, "AiUsageEvent")
	assert.Equal(t, "types.ai-usage-event.go", report["AiUsageEvent"].File)
	assert.Equal(t, []AuthUsage{{Type: "Query", Field: "rawEvents", File: "types.ai-usage-data.go"}}, report["AiUsageEvent"].Usages)

	schema, err := reg.Build()
	require.NoError(t, err)

	w := NewLoaderFactory((&userStore{}).fetch).NewWindow(context.Background())
	defer w.Close()

	res := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `{ rawEvents { id event user { id } } }`,
		Context:       dataloader.WithWindow(context.Background(), w),
	})
	require.NotEmpty(t, res.Errors)
	for _, e := range res.Errors {
		assert.Contains(t, e.Message, "insufficient privilege")
	}
}

func TestSchemaPassesAuthorizationAudit(t *testing.T) {
	f := newFixture(t)

	assert.Empty(t, f.registry.CheckAuthorization())
}

func TestUserLoaderNeedsWindow(t *testing.T) {
	_, err := UserLoader(context.Background())
	assert.Error(t, err)

	w := dataloader.NewWindow(context.Background())
	defer w.Close()

	_, err = UserLoader(dataloader.WithWindow(context.Background(), w))
	assert.Error(t, err)
}
