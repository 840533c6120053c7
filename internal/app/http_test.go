package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"loom/api/internal/store"
)

func newTestServer(fake *fakeStore) *HTTPServer {
	service, _ := newTestService(fake)
	return NewHTTPServer(service, "*")
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&fakeStore{})
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(recorder.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok true, got %v", body)
	}
}

func TestReadyEndpoint(t *testing.T) {
	server := newTestServer(&fakeStore{})
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	server := newTestServer(&fakeStore{})
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/feed", nil))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", recorder.Code)
	}
}

func TestLifecycleWebhookRequiresSharedToken(t *testing.T) {
	server := newTestServer(&fakeStore{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/webhooks/lifecycle", strings.NewReader(`{}`))
	server.Handler().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	request = httptest.NewRequest(http.MethodPost, "/api/webhooks/lifecycle", strings.NewReader(`{"type":"unrecognized.kind","data":{}}`))
	request.Header.Set("Authorization", "Bearer test-lifecycle")
	server.Handler().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected unknown events to be acknowledged, got %d", recorder.Code)
	}
}

func TestLifecycleWebhookDispatchesMembership(t *testing.T) {
	added := false
	fake := &fakeStore{
		getGroupFn: func(_ context.Context, id string) (store.Group, error) {
			return store.Group{ID: id, MemberIDs: []string{"acc_creator"}}, nil
		},
		appendGroupMemberFn: func(context.Context, string, string) error {
			added = true
			return nil
		},
	}
	server := newTestServer(fake)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/webhooks/lifecycle",
		strings.NewReader(`{"type":"membership.created","data":{"groupId":"grp_1","accountId":"acc_2"}}`))
	request.Header.Set("Authorization", "Bearer test-lifecycle")
	server.Handler().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if !added {
		t.Fatal("expected the membership event to reach the store")
	}
}

func TestSignUpAndAuthenticatedPost(t *testing.T) {
	var insertedBody string
	fake := &fakeStore{
		insertContentFn: func(_ context.Context, content store.Content) error {
			insertedBody = content.Body
			return nil
		},
	}
	server := newTestServer(fake)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/auth/signup",
		strings.NewReader(`{"username":"alice","name":"Alice A","password":"hunter2222"}`))
	server.Handler().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201 from signup, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	recorder = httptest.NewRecorder()
	request = httptest.NewRequest(http.MethodPost, "/api/contents",
		strings.NewReader(`{"body":"first post"}`))
	request.Header.Set("Authorization", "Bearer "+session.Token)
	server.Handler().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201 from post, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if insertedBody != "first post" {
		t.Fatalf("expected content row written, got %q", insertedBody)
	}
}
