package lifecycle

import (
	"context"
	"errors"
	"testing"
)

type recordingApplier struct {
	calls []string
}

func (r *recordingApplier) CreateGroup(_ context.Context, id, name, username, image, bio, creatorID string) error {
	r.calls = append(r.calls, "create:"+id+":"+username+":"+creatorID)
	return nil
}

func (r *recordingApplier) UpdateGroupInfo(_ context.Context, id, name, username, image, bio string) error {
	r.calls = append(r.calls, "update:"+id+":"+name)
	return nil
}

func (r *recordingApplier) DeleteGroupTree(_ context.Context, id string) error {
	r.calls = append(r.calls, "delete:"+id)
	return nil
}

func (r *recordingApplier) AddMember(_ context.Context, groupID, accountID string) error {
	r.calls = append(r.calls, "add:"+groupID+":"+accountID)
	return nil
}

func (r *recordingApplier) RemoveMember(_ context.Context, accountID, groupID string) error {
	r.calls = append(r.calls, "remove:"+groupID+":"+accountID)
	return nil
}

func TestDecodeGroupCreated(t *testing.T) {
	payload := []byte(`{
		"type": "group.created",
		"data": {"id": "grp_1", "name": "Gophers", "username": "gophers", "image": "https://cdn/img.png", "bio": "", "creatorId": "acc_1"}
	}`)

	event, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.Kind != KindGroupCreated {
		t.Fatalf("expected group.created, got %s", event.Kind)
	}
	if event.GroupCreated == nil || event.GroupCreated.CreatorID != "acc_1" {
		t.Fatalf("payload not bound: %+v", event.GroupCreated)
	}

	applier := &recordingApplier{}
	if err := event.Apply(context.Background(), applier); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(applier.calls) != 1 || applier.calls[0] != "create:grp_1:gophers:acc_1" {
		t.Fatalf("unexpected dispatch: %v", applier.calls)
	}
}

func TestDecodeMembershipEvents(t *testing.T) {
	applier := &recordingApplier{}
	for _, payload := range []string{
		`{"type": "membership.created", "data": {"groupId": "grp_1", "accountId": "acc_2"}}`,
		`{"type": "membership.deleted", "data": {"groupId": "grp_1", "accountId": "acc_2"}}`,
	} {
		event, err := Decode([]byte(payload))
		if err != nil {
			t.Fatalf("decode %s: %v", payload, err)
		}
		if err := event.Apply(context.Background(), applier); err != nil {
			t.Fatalf("apply %s: %v", payload, err)
		}
	}
	want := []string{"add:grp_1:acc_2", "remove:grp_1:acc_2"}
	for i := range want {
		if applier.calls[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, applier.calls)
		}
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type": "session.created", "data": {}}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestDecodeRejectsMissingRequiredFields(t *testing.T) {
	_, err := Decode([]byte(`{"type": "group.deleted", "data": {}}`))
	if err == nil {
		t.Fatal("expected validation error for missing id")
	}
}
