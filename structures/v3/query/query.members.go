package query

import (
	"context"

	"github.com/SevenTV/AiUsage/mongo"
	"github.com/SevenTV/AiUsage/structures/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NamespaceRole returns the role of a user in a namespace, or NamespaceRoleNone for non-members.
func (q *Query) NamespaceRole(ctx context.Context, namespaceID, userID primitive.ObjectID) (structures.NamespaceRole, error) {
	member := structures.NamespaceMember{}

	err := q.mongo.Collection(mongo.CollectionNameNamespaceMembers).FindOne(ctx, bson.M{
		"namespace_id": namespaceID,
		"user_id":      userID,
	}).Decode(&member)
	if err == mongo.ErrNoDocuments {
		return structures.NamespaceRoleNone, nil
	}
	if err != nil {
		return structures.NamespaceRoleNone, err
	}

	return member.Role, nil
}
