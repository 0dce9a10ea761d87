package models

import "fmt"

// ActorKind tags the Actor variant.
type ActorKind string

const (
	ActorSystem   ActorKind = "system"
	ActorUser     ActorKind = "user"
	ActorExternal ActorKind = "external"
)

// Actor identifies who produced a decision. Exactly the fields of its Kind
// are populated: System{Component}, User{UserID, Role}, External{SystemID}.
type Actor struct {
	Kind      ActorKind `json:"type"`
	Component string    `json:"component,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	SystemID  string    `json:"system_id,omitempty"`
}

func SystemActor(component string) Actor {
	return Actor{Kind: ActorSystem, Component: component}
}

func UserActor(userID, role string) Actor {
	return Actor{Kind: ActorUser, UserID: userID, Role: role}
}

func ExternalActor(systemID string) Actor {
	return Actor{Kind: ActorExternal, SystemID: systemID}
}

// Validate checks that the fields required by Kind are present.
func (a Actor) Validate() error {
	switch a.Kind {
	case ActorSystem:
		if a.Component == "" {
			return fmt.Errorf("system actor requires component")
		}
	case ActorUser:
		if a.UserID == "" {
			return fmt.Errorf("user actor requires user_id")
		}
	case ActorExternal:
		if a.SystemID == "" {
			return fmt.Errorf("external actor requires system_id")
		}
	default:
		return fmt.Errorf("unknown actor type %q", a.Kind)
	}
	return nil
}
