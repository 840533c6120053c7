// Package lifecycle decodes external group lifecycle notifications into a
// closed set of typed events and maps them onto the five group operations.
// Signature verification of the delivery happens at the transport layer; this
// package only validates shape.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Kind names one of the five supported notification types. Anything else is
// rejected at decode time.
type Kind string

const (
	KindGroupCreated  Kind = "group.created"
	KindGroupUpdated  Kind = "group.updated"
	KindGroupDeleted  Kind = "group.deleted"
	KindMemberAdded   Kind = "membership.created"
	KindMemberRemoved Kind = "membership.deleted"
)

var ErrUnknownEvent = errors.New("unknown lifecycle event type")

type GroupCreated struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Username  string `json:"username" validate:"required"`
	Image     string `json:"image"`
	Bio       string `json:"bio"`
	CreatorID string `json:"creatorId" validate:"required"`
}

type GroupUpdated struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Username string `json:"username" validate:"required"`
	Image    string `json:"image"`
	Bio      string `json:"bio"`
}

type GroupDeleted struct {
	ID string `json:"id" validate:"required"`
}

type Membership struct {
	GroupID   string `json:"groupId" validate:"required"`
	AccountID string `json:"accountId" validate:"required"`
}

// Event is a tagged variant: exactly the payload field matching Kind is set.
type Event struct {
	Kind          Kind
	GroupCreated  *GroupCreated
	GroupUpdated  *GroupUpdated
	GroupDeleted  *GroupDeleted
	MemberAdded   *Membership
	MemberRemoved *Membership
}

// Applier is the group-operation surface an event dispatches to.
type Applier interface {
	CreateGroup(ctx context.Context, id, name, username, image, bio, creatorID string) error
	UpdateGroupInfo(ctx context.Context, id, name, username, image, bio string) error
	DeleteGroupTree(ctx context.Context, id string) error
	AddMember(ctx context.Context, groupID, accountID string) error
	RemoveMember(ctx context.Context, accountID, groupID string) error
}

var validate = validator.New()

type envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode parses a notification payload into a typed Event. Unknown types
// yield ErrUnknownEvent; payloads missing required fields fail validation.
func Decode(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("decode lifecycle envelope: %w", err)
	}

	event := Event{Kind: env.Type}
	var data any
	switch env.Type {
	case KindGroupCreated:
		event.GroupCreated = &GroupCreated{}
		data = event.GroupCreated
	case KindGroupUpdated:
		event.GroupUpdated = &GroupUpdated{}
		data = event.GroupUpdated
	case KindGroupDeleted:
		event.GroupDeleted = &GroupDeleted{}
		data = event.GroupDeleted
	case KindMemberAdded:
		event.MemberAdded = &Membership{}
		data = event.MemberAdded
	case KindMemberRemoved:
		event.MemberRemoved = &Membership{}
		data = event.MemberRemoved
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}

	if err := json.Unmarshal(env.Data, data); err != nil {
		return Event{}, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	if err := validate.Struct(data); err != nil {
		return Event{}, fmt.Errorf("validate %s payload: %w", env.Type, err)
	}
	return event, nil
}

// Apply dispatches the event to its matching operation.
func (e Event) Apply(ctx context.Context, target Applier) error {
	switch e.Kind {
	case KindGroupCreated:
		g := e.GroupCreated
		return target.CreateGroup(ctx, g.ID, g.Name, g.Username, g.Image, g.Bio, g.CreatorID)
	case KindGroupUpdated:
		g := e.GroupUpdated
		return target.UpdateGroupInfo(ctx, g.ID, g.Name, g.Username, g.Image, g.Bio)
	case KindGroupDeleted:
		return target.DeleteGroupTree(ctx, e.GroupDeleted.ID)
	case KindMemberAdded:
		return target.AddMember(ctx, e.MemberAdded.GroupID, e.MemberAdded.AccountID)
	case KindMemberRemoved:
		return target.RemoveMember(ctx, e.MemberRemoved.AccountID, e.MemberRemoved.GroupID)
	}
	return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Kind)
}
