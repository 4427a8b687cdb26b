package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CollectionUsers is the collection users are stored in.
const CollectionUsers = "user"

// Role is a user's function in the sales team.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleSetter Role = "setter"
	RoleCloser Role = "closer"
	RoleViewer Role = "viewer"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleSetter, RoleCloser, RoleViewer:
		return true
	}
	return false
}

// User is a team member. AssignedLeadIDs holds lead id hex strings.
type User struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name            string             `json:"name" bson:"name"`
	Email           string             `json:"email" bson:"email"`
	Role            Role               `json:"role" bson:"role"`
	Permissions     []string           `json:"permissions" bson:"permissions"`
	AssignedLeadIDs []string           `json:"assigned_lead_ids" bson:"assigned_lead_ids"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

// NewUser builds a user with no permissions and no assigned leads.
func NewUser(name, email string, role Role, now time.Time) *User {
	return &User{
		Name:            name,
		Email:           email,
		Role:            role,
		Permissions:     []string{},
		AssignedLeadIDs: []string{},
		CreatedAt:       now,
	}
}
