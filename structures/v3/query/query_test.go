package query

import (
	"context"
	"testing"
	"time"

	"github.com/SevenTV/AiUsage/errors"
	"github.com/SevenTV/AiUsage/mongo"
	"github.com/SevenTV/AiUsage/redis"
	"github.com/SevenTV/AiUsage/structures/v3"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap/zaptest"
)

func newRedis(t *testing.T) redis.Instance {
	t.Helper()
	mr := miniredis.RunT(t)
	cl := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cl.Close() })

	return redis.WrapClient(cl, "test")
}

func userDoc(id primitive.ObjectID, username string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "username", Value: username},
		{Key: "display_name", Value: username},
	}
}

func TestUsers(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("returns found users only", func(mt *mtest.T) {
		a, b := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "aiusage.users", mtest.FirstBatch, userDoc(a, "forsen")))

		q := New(mongo.WrapDatabase(mt.DB), nil, zaptest.NewLogger(mt.T))
		users, err := q.Users(context.Background(), []primitive.ObjectID{a, b})
		require.NoError(mt, err)

		require.Len(mt, users, 1)
		assert.Equal(mt, "forsen", users[a].Username)
		_, ok := users[b]
		assert.False(mt, ok)
	})

	mt.Run("empty id list skips the database", func(mt *mtest.T) {
		q := New(mongo.WrapDatabase(mt.DB), nil, nil)
		users, err := q.Users(context.Background(), nil)
		require.NoError(mt, err)
		assert.Empty(mt, users)
	})

	mt.Run("database error is returned", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    11600,
			Message: "interrupted at shutdown",
			Name:    "InterruptedAtShutdown",
		}))

		q := New(mongo.WrapDatabase(mt.DB), nil, nil)
		_, err := q.Users(context.Background(), []primitive.ObjectID{primitive.NewObjectID()})
		assert.Error(mt, err)
	})

	mt.Run("second lookup is served from redis", func(mt *mtest.T) {
		a := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "aiusage.users", mtest.FirstBatch, userDoc(a, "nymn")))

		q := New(mongo.WrapDatabase(mt.DB), newRedis(mt.T), zaptest.NewLogger(mt.T), WithUserCacheTTL(time.Minute))
		ctx := context.Background()

		first, err := q.Users(ctx, []primitive.ObjectID{a})
		require.NoError(mt, err)
		require.Contains(mt, first, a)

		// no further mock responses are queued, so this must not reach mongo
		second, err := q.Users(ctx, []primitive.ObjectID{a})
		require.NoError(mt, err)
		assert.Equal(mt, "nymn", second[a].Username)

		require.NoError(mt, q.InvalidateUser(ctx, a))
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "aiusage.users", mtest.FirstBatch, userDoc(a, "renamed")))

		third, err := q.Users(ctx, []primitive.ObjectID{a})
		require.NoError(mt, err)
		assert.Equal(mt, "renamed", third[a].Username)
	})
}

func TestAiUsageEvents(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	ns := primitive.NewObjectID()

	mt.Run("decodes events", func(mt *mtest.T) {
		user := primitive.NewObjectID()
		ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "aiusage.ai_usage_events", mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: primitive.NewObjectID()},
				{Key: "timestamp", Value: ts},
				{Key: "event", Value: string(structures.AiUsageEventKindCodeSuggestionAccepted)},
				{Key: "user_id", Value: user},
				{Key: "namespace_id", Value: ns},
			},
		))

		q := New(mongo.WrapDatabase(mt.DB), nil, nil)
		events, err := q.AiUsageEvents(context.Background(), AiUsageEventsOptions{
			NamespaceID: ns,
			Kinds:       structures.CodeSuggestionEventKinds,
			Limit:       10,
		})
		require.NoError(mt, err)
		require.Len(mt, events, 1)
		assert.Equal(mt, structures.AiUsageEventKindCodeSuggestionAccepted, events[0].Event)
		assert.Equal(mt, user, events[0].UserID)
		assert.True(mt, ts.Equal(events[0].Timestamp))
	})

	mt.Run("rejects bad options", func(mt *mtest.T) {
		q := New(mongo.WrapDatabase(mt.DB), nil, nil)

		_, err := q.AiUsageEvents(context.Background(), AiUsageEventsOptions{})
		assert.True(mt, errors.Compare(err, errors.ErrInvalidRequest()))

		start := time.Now()
		end := start.Add(-time.Hour)
		_, err = q.AiUsageEvents(context.Background(), AiUsageEventsOptions{NamespaceID: ns, StartDate: &start, EndDate: &end})
		assert.True(mt, errors.Compare(err, errors.ErrInvalidRequest()))
	})
}

func TestNamespaceRole(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	ns, user := primitive.NewObjectID(), primitive.NewObjectID()

	mt.Run("member", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "aiusage.namespace_members", mtest.FirstBatch, bson.D{
			{Key: "namespace_id", Value: ns},
			{Key: "user_id", Value: user},
			{Key: "role", Value: int32(structures.NamespaceRoleDeveloper)},
		}))

		q := New(mongo.WrapDatabase(mt.DB), nil, nil)
		role, err := q.NamespaceRole(context.Background(), ns, user)
		require.NoError(mt, err)
		assert.Equal(mt, structures.NamespaceRoleDeveloper, role)
	})

	mt.Run("not a member", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "aiusage.namespace_members", mtest.FirstBatch))

		q := New(mongo.WrapDatabase(mt.DB), nil, nil)
		role, err := q.NamespaceRole(context.Background(), ns, user)
		require.NoError(mt, err)
		assert.Equal(mt, structures.NamespaceRoleNone, role)
	})
}
