package query

import (
	"context"
	"time"

	"github.com/SevenTV/AiUsage/errors"
	"github.com/SevenTV/AiUsage/mongo"
	"github.com/SevenTV/AiUsage/structures/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const AI_USAGE_EVENTS_QUERY_LIMIT = 300

type AiUsageEventsOptions struct {
	NamespaceID primitive.ObjectID
	StartDate   *time.Time
	EndDate     *time.Time
	Kinds       []structures.AiUsageEventKind
	Limit       int
}

// AiUsageEvents lists the events of a namespace, newest first.
func (q *Query) AiUsageEvents(ctx context.Context, opt AiUsageEventsOptions) ([]structures.AiUsageEvent, error) {
	if opt.NamespaceID.IsZero() {
		return nil, errors.ErrInvalidRequest().SetDetail("namespace id is required")
	}
	if opt.StartDate != nil && opt.EndDate != nil && opt.EndDate.Before(*opt.StartDate) {
		return nil, errors.ErrInvalidRequest().SetDetail("end date is before start date")
	}

	limit := opt.Limit
	if limit <= 0 || limit > AI_USAGE_EVENTS_QUERY_LIMIT {
		limit = AI_USAGE_EVENTS_QUERY_LIMIT
	}

	filter := bson.M{"namespace_id": opt.NamespaceID}

	timeRange := bson.M{}
	if opt.StartDate != nil {
		timeRange["$gte"] = *opt.StartDate
	}
	if opt.EndDate != nil {
		timeRange["$lte"] = *opt.EndDate
	}
	if len(timeRange) != 0 {
		filter["timestamp"] = timeRange
	}

	if len(opt.Kinds) != 0 {
		filter["event"] = bson.M{"$in": opt.Kinds}
	}

	cur, err := q.mongo.Collection(mongo.CollectionNameAiUsageEvents).Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, errors.ErrInternalServerError().SetDetail("%s", err.Error())
	}

	result := []structures.AiUsageEvent{}
	if err = cur.All(ctx, &result); err != nil {
		return nil, errors.ErrInternalServerError().SetDetail("%s", err.Error())
	}

	return result, nil
}
