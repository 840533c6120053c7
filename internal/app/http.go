package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"loom/api/internal/auth"
	"loom/api/internal/directory"
	"loom/api/internal/lifecycle"
	"loom/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		var body struct {
			Username string `json:"username"`
			Name     string `json:"name"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.SignUp(r.Context(), SignUpInput{
			Username: body.Username,
			Name:     body.Name,
			Password: body.Password,
		})
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.SignIn(r.Context(), body.Username, body.Password)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		_ = s.service.Logout(r.Context(), bearerToken(r))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"accountId":     session.AccountID,
			"username":      session.Username,
		})
		return
	}

	// Group lifecycle deliveries carry their own shared token.
	if r.Method == http.MethodPost && r.URL.Path == "/api/webhooks/lifecycle" {
		s.handleLifecycle(w, r)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/feed" {
		page, pageSize, ok := pageParams(w, r)
		if !ok {
			return
		}
		feed, err := s.service.HomeFeed(r.Context(), page, pageSize)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, feedPayload(feed))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/upload" {
		s.handleUpload(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" {
		switch parts[1] {
		case "accounts":
			s.handleAccounts(w, r, session, parts[2:])
			return
		case "groups":
			s.handleGroups(w, r, session, parts[2:])
			return
		case "contents":
			s.handleContents(w, r, session, parts[2:])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleAccounts(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		if r.Method == http.MethodGet {
			query, ok := directoryQuery(w, r, session.AccountID)
			if !ok {
				return
			}
			page, err := s.service.SearchAccounts(r.Context(), query)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"accounts": accountSummaryPayload(page.Accounts),
				"total":    page.Total,
				"hasNext":  page.HasNext,
			})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	accountID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			account, err := s.service.GetAccount(r.Context(), accountID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, accountPayload(account))
			return
		case http.MethodPut:
			var body struct {
				Username string `json:"username"`
				Name     string `json:"name"`
				Bio      string `json:"bio"`
				Image    string `json:"image"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			err := s.service.UpsertProfile(r.Context(), ProfileInput{
				AccountID: accountID,
				Username:  body.Username,
				Name:      body.Name,
				Bio:       body.Bio,
				Image:     body.Image,
			})
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 2 && r.Method == http.MethodGet {
		switch parts[1] {
		case "posts":
			posts, err := s.service.AccountPosts(r.Context(), accountID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"posts": contentListPayload(posts)})
			return
		case "activity":
			items, err := s.service.Activity(r.Context(), accountID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			payload := make([]map[string]any, 0, len(items))
			for _, item := range items {
				payload = append(payload, map[string]any{
					"reply":  contentPayload(item.Reply),
					"author": summaryPayload(item.Author.ID, item.Author.Username, item.Author.Name, item.Author.Image),
				})
			}
			writeJSON(w, http.StatusOK, map[string]any{"activity": payload})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleGroups(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			query, ok := directoryQuery(w, r, "")
			if !ok {
				return
			}
			page, err := s.service.SearchGroups(r.Context(), query)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"groups":  groupSummaryPayload(page.Groups),
				"total":   page.Total,
				"hasNext": page.HasNext,
			})
			return
		case http.MethodPost:
			var body struct {
				ID       string `json:"id"`
				Name     string `json:"name"`
				Username string `json:"username"`
				Image    string `json:"image"`
				Bio      string `json:"bio"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			err := s.service.CreateGroup(r.Context(), body.ID, body.Name, body.Username, body.Image, body.Bio, session.AccountID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	groupID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			detail, err := s.service.GroupDetail(r.Context(), groupID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, groupDetailPayload(detail))
			return
		case http.MethodPut:
			var body struct {
				Name     string `json:"name"`
				Username string `json:"username"`
				Image    string `json:"image"`
				Bio      string `json:"bio"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			err := s.service.UpdateGroupInfo(r.Context(), groupID, body.Name, body.Username, body.Image, body.Bio)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		case http.MethodDelete:
			if err := s.service.DeleteGroupTree(r.Context(), groupID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if parts[1] == "posts" && len(parts) == 2 && r.Method == http.MethodGet {
		posts, err := s.service.GroupPosts(r.Context(), groupID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"posts": contentListPayload(posts)})
		return
	}

	if parts[1] == "members" {
		if len(parts) == 2 && r.Method == http.MethodPost {
			var body struct {
				AccountID string `json:"accountId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.AddMember(r.Context(), groupID, body.AccountID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		if len(parts) == 3 && r.Method == http.MethodDelete {
			if err := s.service.RemoveMember(r.Context(), parts[2], groupID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleContents(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		if r.Method == http.MethodPost {
			var body struct {
				Body    string `json:"body"`
				GroupID string `json:"groupId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			content, err := s.service.CreatePost(r.Context(), CreatePostInput{
				AuthorID: session.AccountID,
				Body:     body.Body,
				GroupID:  body.GroupID,
			})
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, contentPayload(content))
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	contentID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			contentTree, err := s.service.FetchContentTree(r.Context(), contentID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			authors := make(map[string]any, len(contentTree.Authors))
			for id, author := range contentTree.Authors {
				authors[id] = summaryPayload(author.ID, author.Username, author.Name, author.Image)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"nodes":   contentListPayload(contentTree.Nodes),
				"authors": authors,
			})
			return
		case http.MethodDelete:
			if err := s.service.DeleteContentTree(r.Context(), contentID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 2 && parts[1] == "replies" && r.Method == http.MethodPost {
		var body struct {
			Body string `json:"body"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		reply, err := s.service.CreateReply(r.Context(), CreateReplyInput{
			AuthorID: session.AccountID,
			ParentID: contentID,
			Body:     body.Body,
		})
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, contentPayload(reply))
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" || token != s.service.LifecycleToken() {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "unreadable body", nil)
		return
	}
	event, err := lifecycle.Decode(payload)
	if err != nil {
		if errors.Is(err, lifecycle.ErrUnknownEvent) {
			// Unknown event kinds are acknowledged so the sender stops
			// redelivering them.
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ignored": true})
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	if err := event.Apply(r.Context(), s.service); err != nil {
		// Redeliveries target state the first delivery already applied
		// (rows gone, members present); acknowledge them so the sender
		// stops retrying.
		var duplicate *store.DuplicateKeyError
		if store.IsNotFound(err) || errors.Is(err, store.ErrAlreadyMember) || errors.As(err, &duplicate) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ignored": true})
			return
		}
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
		return
	}
	defer file.Close()

	url, err := s.service.UploadImage(r.Context(), header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"url": url})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func pageParams(w http.ResponseWriter, r *http.Request) (page, pageSize int, ok bool) {
	page = 1
	pageSize = 20
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "page must be an integer", nil)
			return 0, 0, false
		}
		page = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("pageSize")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "pageSize must be an integer", nil)
			return 0, 0, false
		}
		pageSize = parsed
	}
	return page, pageSize, true
}

func directoryQuery(w http.ResponseWriter, r *http.Request, excludeID string) (directory.Query, bool) {
	page, pageSize, ok := pageParams(w, r)
	if !ok {
		return directory.Query{}, false
	}
	order := directory.OrderDesc
	if strings.TrimSpace(r.URL.Query().Get("order")) == "asc" {
		order = directory.OrderAsc
	}
	return directory.Query{
		Text:      r.URL.Query().Get("q"),
		Page:      page,
		PageSize:  pageSize,
		Order:     order,
		ExcludeID: excludeID,
	}, true
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var notFound *store.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound, "NOT_FOUND", notFound.Error(), nil
	}
	var duplicate *store.DuplicateKeyError
	if errors.As(err, &duplicate) {
		return http.StatusConflict, "DUPLICATE", duplicate.Error(), nil
	}
	if errors.Is(err, store.ErrAlreadyMember) {
		return http.StatusConflict, "ALREADY_MEMBER", "Account is already a member", nil
	}
	var invalid *store.InvalidArgumentError
	if errors.As(err, &invalid) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", invalid.Error(), nil
	}
	var violation *store.InvariantViolationError
	if errors.As(err, &violation) {
		log.Printf(`{"level":"error","event":"invariant_violation","detail":%q}`, violation.Detail)
		return http.StatusInternalServerError, "INVARIANT_VIOLATION", "Stored references are inconsistent", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// --- payload shaping ---

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":     session.Token,
		"accountId": session.AccountID,
		"username":  session.Username,
		"expiresAt": session.ExpiresAt.Format(time.RFC3339),
	}
}

func summaryPayload(id, username, name, image string) map[string]any {
	return map[string]any{
		"id":       id,
		"username": username,
		"name":     name,
		"image":    image,
	}
}

func accountSummaryPayload(items []store.AccountSummary) []map[string]any {
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, summaryPayload(item.ID, item.Username, item.Name, item.Image))
	}
	return payload
}

func groupSummaryPayload(items []store.GroupSummary) []map[string]any {
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, summaryPayload(item.ID, item.Username, item.Name, item.Image))
	}
	return payload
}

func accountPayload(account store.AccountWithGroups) map[string]any {
	return map[string]any{
		"id":         account.ID,
		"username":   account.Username,
		"name":       account.Name,
		"bio":        account.Bio,
		"image":      account.Image,
		"onboarded":  account.Onboarded,
		"contentIds": account.ContentIDs,
		"groups":     groupSummaryPayload(account.Groups),
	}
}

func groupDetailPayload(detail store.GroupDetail) map[string]any {
	return map[string]any{
		"id":         detail.ID,
		"username":   detail.Username,
		"name":       detail.Name,
		"bio":        detail.Bio,
		"image":      detail.Image,
		"createdBy":  detail.CreatedBy,
		"creator":    summaryPayload(detail.Creator.ID, detail.Creator.Username, detail.Creator.Name, detail.Creator.Image),
		"members":    accountSummaryPayload(detail.Members),
		"contentIds": detail.ContentIDs,
	}
}

func contentPayload(content store.Content) map[string]any {
	return map[string]any{
		"id":        content.ID,
		"body":      content.Body,
		"authorId":  content.AuthorID,
		"groupId":   content.GroupID,
		"parentId":  content.ParentID,
		"childIds":  content.ChildIDs,
		"createdAt": content.CreatedAt.Format(time.RFC3339),
	}
}

func contentListPayload(items []store.Content) []map[string]any {
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, contentPayload(item))
	}
	return payload
}

func feedPayload(feed FeedPage) map[string]any {
	authors := make(map[string]any, len(feed.Authors))
	for id, author := range feed.Authors {
		authors[id] = summaryPayload(author.ID, author.Username, author.Name, author.Image)
	}
	groups := make(map[string]any, len(feed.Groups))
	for id, group := range feed.Groups {
		groups[id] = summaryPayload(group.ID, group.Username, group.Name, group.Image)
	}
	return map[string]any{
		"posts":   contentListPayload(feed.Posts),
		"authors": authors,
		"groups":  groups,
		"total":   feed.Total,
		"hasNext": feed.HasNext,
	}
}
