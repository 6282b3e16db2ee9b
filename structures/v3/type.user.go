package structures

import "go.mongodb.org/mongo-driver/bson/primitive"

type User struct {
	ID          primitive.ObjectID `json:"id" bson:"_id"`
	Username    string             `json:"username" bson:"username"`
	DisplayName string             `json:"display_name" bson:"display_name"`
	AvatarURL   string             `json:"avatar_url,omitempty" bson:"avatar_url,omitempty"`
	Admin       bool               `json:"admin,omitempty" bson:"admin,omitempty"`
}

// Name returns the display name, falling back to the username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}

	return u.Username
}
