package structures

import "go.mongodb.org/mongo-driver/bson/primitive"

// NamespaceMember grants a user a role inside a group or project namespace.
type NamespaceMember struct {
	NamespaceID primitive.ObjectID `json:"namespace_id" bson:"namespace_id"`
	UserID      primitive.ObjectID `json:"user_id" bson:"user_id"`
	Role        NamespaceRole      `json:"role" bson:"role"`
}

type NamespaceRole int32

const (
	NamespaceRoleNone       NamespaceRole = 0
	NamespaceRoleGuest      NamespaceRole = 10
	NamespaceRoleReporter   NamespaceRole = 20
	NamespaceRoleDeveloper  NamespaceRole = 30
	NamespaceRoleMaintainer NamespaceRole = 40
	NamespaceRoleOwner      NamespaceRole = 50
)

func (r NamespaceRole) AtLeast(min NamespaceRole) bool {
	return r >= min
}
