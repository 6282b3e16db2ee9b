package query

import (
	"context"
	"encoding/json"

	"github.com/SevenTV/AiUsage/dataloader"
	"github.com/SevenTV/AiUsage/mongo"
	"github.com/SevenTV/AiUsage/redis"
	"github.com/SevenTV/AiUsage/structures/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Users fetches every listed user in at most one redis and one mongo round trip.
// Unknown ids are left out of the result.
func (q *Query) Users(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*structures.User, error) {
	result := make(map[primitive.ObjectID]*structures.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	missing := q.cachedUsers(ctx, ids, result)
	if len(missing) == 0 {
		return result, nil
	}

	cur, err := q.mongo.Collection(mongo.CollectionNameUsers).Find(ctx, bson.M{
		"_id": bson.M{
			"$in": missing,
		},
	})
	if err != nil {
		return nil, err
	}

	users := []*structures.User{}
	if err = cur.All(ctx, &users); err != nil {
		return nil, err
	}

	for _, u := range users {
		result[u.ID] = u
	}

	q.cacheUsers(ctx, users)

	return result, nil
}

// UserFetcher adapts Users to the loader's fetch contract.
func (q *Query) UserFetcher() dataloader.FetchFunc[primitive.ObjectID, *structures.User] {
	return q.Users
}

func (q *Query) userKey(id primitive.ObjectID) redis.Key {
	return q.redis.ComposeKey("user", id.Hex())
}

// cachedUsers fills result from redis and returns the ids it could not find there.
func (q *Query) cachedUsers(ctx context.Context, ids []primitive.ObjectID, result map[primitive.ObjectID]*structures.User) []primitive.ObjectID {
	if q.redis == nil || q.userCacheTTL <= 0 {
		return ids
	}

	keys := make([]redis.Key, len(ids))
	for i, id := range ids {
		keys[i] = q.userKey(id)
	}

	values, err := q.redis.MGet(ctx, keys...)
	if err != nil {
		q.logger.Warn("query, user cache read failed", zap.Error(err))
		return ids
	}

	missing := []primitive.ObjectID{}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}

		u := &structures.User{}
		if err := json.Unmarshal([]byte(s), u); err != nil || u.ID != ids[i] {
			missing = append(missing, ids[i])
			continue
		}

		result[u.ID] = u
	}

	return missing
}

func (q *Query) cacheUsers(ctx context.Context, users []*structures.User) {
	if q.redis == nil || q.userCacheTTL <= 0 || len(users) == 0 {
		return
	}

	values := make(map[redis.Key]string, len(users))
	for _, u := range users {
		b, err := json.Marshal(u)
		if err != nil {
			continue
		}

		values[q.userKey(u.ID)] = string(b)
	}

	if err := q.redis.SetManyEX(ctx, values, q.userCacheTTL); err != nil {
		q.logger.Warn("query, user cache write failed", zap.Error(err))
	}
}

// InvalidateUser drops a user from the cache after it changed.
func (q *Query) InvalidateUser(ctx context.Context, id primitive.ObjectID) error {
	if q.redis == nil {
		return nil
	}

	return q.redis.Del(ctx, q.userKey(id))
}
