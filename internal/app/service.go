// Package app orchestrates the store, tree, directory, and session layers
// behind the HTTP surface. Every mutation that touches more than one entity
// runs here, in the fixed order that keeps the ownership and membership
// arrays consistent with the rows they point at.
package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"loom/api/internal/auth"
	"loom/api/internal/config"
	"loom/api/internal/directory"
	"loom/api/internal/session"
	"loom/api/internal/store"
	"loom/api/internal/tree"
	"loom/api/internal/util"
)

type Session struct {
	Token     string
	AccountID string
	Username  string
	JTI       string
	ExpiresAt time.Time
}

type SignUpInput struct {
	Username string `validate:"required,min=3,max=30"`
	Name     string `validate:"required,min=3,max=30"`
	Password string `validate:"required,min=8"`
}

type ProfileInput struct {
	AccountID string `validate:"required"`
	Username  string `validate:"required,min=3,max=30"`
	Name      string `validate:"required,min=3,max=30"`
	Bio       string `validate:"max=1000"`
	Image     string `validate:"omitempty,url"`
}

type CreatePostInput struct {
	AuthorID string `validate:"required"`
	Body     string `validate:"required,min=3"`
	GroupID  string
}

type CreateReplyInput struct {
	AuthorID string `validate:"required"`
	ParentID string `validate:"required"`
	Body     string `validate:"required,min=3"`
}

type groupInput struct {
	Name     string `validate:"required,min=3,max=30"`
	Username string `validate:"required,min=3,max=30"`
	Bio      string `validate:"max=1000"`
	Image    string `validate:"omitempty,url"`
}

// ContentTree is one content node with its full transitive reply subtree,
// breadth-first, root first, plus the summaries of every author involved.
type ContentTree struct {
	Nodes   []store.Content
	Authors map[string]store.AccountSummary
}

// FeedPage is one page of top-level posts with hydrated author and group
// summaries.
type FeedPage struct {
	Posts   []store.Content
	Authors map[string]store.AccountSummary
	Groups  map[string]store.GroupSummary
	Total   int
	HasNext bool
}

// ActivityItem is a reply someone else left under the account's content.
type ActivityItem struct {
	Reply  store.Content
	Author store.AccountSummary
}

type dataStore interface {
	GetAccount(context.Context, string) (store.Account, error)
	GetAccountByUsername(context.Context, string) (store.Account, error)
	GetAccountWithGroups(context.Context, string) (store.AccountWithGroups, error)
	CreateAccount(context.Context, store.Account) error
	UpsertAccount(ctx context.Context, accountID, username, name, bio, image string) error
	AppendAccountContent(context.Context, string, string) error
	AppendAccountGroup(context.Context, string, string) error
	RemoveAccountGroup(context.Context, string, string) error
	PurgeAccountContentRefs(context.Context, string, []string) error
	ListAccountSummaries(context.Context, []string) ([]store.AccountSummary, error)
	SearchAccounts(ctx context.Context, text, excludeID string, asc bool, limit, offset int) ([]store.AccountSummary, error)
	CountAccounts(ctx context.Context, text, excludeID string) (int, error)

	GetGroup(context.Context, string) (store.Group, error)
	GetGroupDetail(context.Context, string) (store.GroupDetail, error)
	CreateGroup(context.Context, store.Group) error
	UpdateGroupInfo(ctx context.Context, groupID, name, username, image, bio string) error
	DeleteGroupRecord(context.Context, string) error
	AppendGroupContent(context.Context, string, string) error
	AppendGroupMember(context.Context, string, string) error
	RemoveGroupMember(context.Context, string, string) error
	PurgeGroupContentRefs(context.Context, string, []string) error
	ListGroupSummaries(context.Context, []string) ([]store.GroupSummary, error)
	SearchGroups(ctx context.Context, text string, asc bool, limit, offset int) ([]store.GroupSummary, error)
	CountGroups(ctx context.Context, text string) (int, error)

	InsertContent(context.Context, store.Content) error
	GetContent(context.Context, string) (store.Content, error)
	ListContentByIDs(context.Context, []string) ([]store.Content, error)
	DeleteContentRows(context.Context, []string) error
	AppendChild(context.Context, string, string) error
	ListTopLevelContent(ctx context.Context, limit, offset int) ([]store.Content, error)
	CountTopLevelContent(context.Context) (int, error)
	ListContentIDsByAuthor(context.Context, string) ([]string, error)
	ListRepliesToContent(ctx context.Context, parentIDs []string, excludeAuthor string) ([]store.Content, error)

	Ping(ctx context.Context) error
}

type sessionStore interface {
	Save(ctx context.Context, tokenHash, accountID, username string, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (session.Data, error)
	Revoke(ctx context.Context, tokenHash string) error
}

type imageStore interface {
	UploadImage(ctx context.Context, filename, contentType string, body io.Reader, size int64) (string, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	media     imageStore
	tree      *tree.Resolver
	directory *directory.Service
	validate  *validator.Validate
}

// New wires the service. media may be nil when object storage is not
// configured; image uploads then fail with a 503.
func New(cfg config.Config, dataStore dataStore, sessions sessionStore, media imageStore) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		media:     media,
		tree:      tree.NewResolver(dataStore),
		directory: directory.NewService(dataStore),
		validate:  validator.New(),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) LifecycleToken() string {
	return s.cfg.LifecycleToken
}

// --- identity ---

func (s *Service) SignUp(ctx context.Context, input SignUpInput) (Session, error) {
	if err := s.validate.Struct(input); err != nil {
		return Session{}, validationError(err)
	}
	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return Session{}, err
	}
	account := store.Account{
		ID:           util.NewID("acc"),
		Username:     strings.ToLower(input.Username),
		Name:         input.Name,
		PasswordHash: hash,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, account.ID, account.Username)
}

func (s *Service) SignIn(ctx context.Context, username, password string) (Session, error) {
	account, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		if store.IsNotFound(err) {
			return Session{}, domainError(401, "UNAUTHORIZED", "Invalid username or password", nil)
		}
		return Session{}, err
	}
	if !auth.CheckPassword(account.PasswordHash, password) {
		return Session{}, domainError(401, "UNAUTHORIZED", "Invalid username or password", nil)
	}
	return s.issueSession(ctx, account.ID, account.Username)
}

func (s *Service) issueSession(ctx context.Context, accountID, username string) (Session, error) {
	expiresAt := time.Now().Add(s.cfg.SessionTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:      accountID,
		Username: username,
		JTI:      jti,
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	if err := s.sessions.Save(ctx, auth.HashToken(token), accountID, username, expiresAt); err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		AccountID: accountID,
		Username:  username,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}, nil
}

// SessionFromToken validates the token signature, then checks the session is
// still live in Redis, so a logout takes effect immediately.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	data, err := s.sessions.Lookup(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	return Session{
		Token:     token,
		AccountID: data.AccountID,
		Username:  data.Username,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, auth.HashToken(token))
}

// --- accounts ---

func (s *Service) GetAccount(ctx context.Context, accountID string) (store.AccountWithGroups, error) {
	return s.store.GetAccountWithGroups(ctx, accountID)
}

// UpsertProfile creates or merges the account profile and marks onboarding
// complete. The same submission twice leaves the row unchanged.
func (s *Service) UpsertProfile(ctx context.Context, input ProfileInput) error {
	if err := s.validate.Struct(input); err != nil {
		return validationError(err)
	}
	return s.store.UpsertAccount(ctx, input.AccountID, input.Username, input.Name, input.Bio, input.Image)
}

// AccountPosts lists the account's top-level posts in the order its ownership
// array records them. The array holds replies too; those stay on the activity
// and tree views.
func (s *Service) AccountPosts(ctx context.Context, accountID string) ([]store.Content, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	contents, err := s.store.ListContentByIDs(ctx, account.ContentIDs)
	if err != nil {
		return nil, err
	}
	ordered := reorderContent(account.ContentIDs, contents)
	posts := make([]store.Content, 0, len(ordered))
	for _, content := range ordered {
		if content.TopLevel() {
			posts = append(posts, content)
		}
	}
	return posts, nil
}

// Activity lists replies other accounts left under anything this account
// wrote, oldest first.
func (s *Service) Activity(ctx context.Context, accountID string) ([]ActivityItem, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	authored, err := s.store.ListContentIDsByAuthor(ctx, accountID)
	if err != nil {
		return nil, err
	}
	replies, err := s.store.ListRepliesToContent(ctx, authored, accountID)
	if err != nil {
		return nil, err
	}

	authors, err := s.authorSummaries(ctx, replies)
	if err != nil {
		return nil, err
	}
	items := make([]ActivityItem, 0, len(replies))
	for _, reply := range replies {
		items = append(items, ActivityItem{Reply: reply, Author: authors[reply.AuthorID]})
	}
	return items, nil
}

func (s *Service) SearchAccounts(ctx context.Context, q directory.Query) (directory.AccountPage, error) {
	return s.directory.Accounts(ctx, q)
}

// --- content ---

// CreatePost inserts a top-level content row, then appends its id to the
// author's and, when posted into a group, the group's ownership arrays.
// Existence is checked up front so a missing author or group never leaves an
// orphan row behind.
func (s *Service) CreatePost(ctx context.Context, input CreatePostInput) (store.Content, error) {
	if err := s.validate.Struct(input); err != nil {
		return store.Content{}, validationError(err)
	}
	if _, err := s.store.GetAccount(ctx, input.AuthorID); err != nil {
		return store.Content{}, err
	}
	if input.GroupID != "" {
		if _, err := s.store.GetGroup(ctx, input.GroupID); err != nil {
			return store.Content{}, err
		}
	}

	content := store.Content{
		ID:       util.NewID("cnt"),
		Body:     input.Body,
		AuthorID: input.AuthorID,
		GroupID:  input.GroupID,
	}
	if err := s.store.InsertContent(ctx, content); err != nil {
		return store.Content{}, err
	}
	if err := s.store.AppendAccountContent(ctx, input.AuthorID, content.ID); err != nil {
		return store.Content{}, err
	}
	if input.GroupID != "" {
		if err := s.store.AppendGroupContent(ctx, input.GroupID, content.ID); err != nil {
			return store.Content{}, err
		}
	}
	return s.store.GetContent(ctx, content.ID)
}

// CreateReply inserts a reply under an existing content node, links it into
// the parent's children list, and appends it to the author's ownership array.
// The ownership array tracks everything the account wrote, replies included.
func (s *Service) CreateReply(ctx context.Context, input CreateReplyInput) (store.Content, error) {
	if err := s.validate.Struct(input); err != nil {
		return store.Content{}, validationError(err)
	}
	if _, err := s.store.GetContent(ctx, input.ParentID); err != nil {
		return store.Content{}, err
	}
	if _, err := s.store.GetAccount(ctx, input.AuthorID); err != nil {
		return store.Content{}, err
	}

	reply := store.Content{
		ID:       util.NewID("cnt"),
		Body:     input.Body,
		AuthorID: input.AuthorID,
		ParentID: input.ParentID,
	}
	if err := s.store.InsertContent(ctx, reply); err != nil {
		return store.Content{}, err
	}
	if err := s.tree.AttachChild(ctx, input.ParentID, reply.ID); err != nil {
		return store.Content{}, err
	}
	if err := s.store.AppendAccountContent(ctx, input.AuthorID, reply.ID); err != nil {
		return store.Content{}, err
	}
	return s.store.GetContent(ctx, reply.ID)
}

// FetchContentTree returns the node and its whole reply subtree.
func (s *Service) FetchContentTree(ctx context.Context, contentID string) (ContentTree, error) {
	nodes, err := s.tree.CollectDescendants(ctx, contentID)
	if err != nil {
		return ContentTree{}, err
	}
	authors, err := s.authorSummaries(ctx, nodes)
	if err != nil {
		return ContentTree{}, err
	}
	return ContentTree{Nodes: nodes, Authors: authors}, nil
}

// DeleteContentTree removes the node and its entire subtree, then scrubs the
// removed ids from every ownership array that referenced them. Deleting an
// already-deleted tree succeeds, so retries and webhook redeliveries are
// harmless.
func (s *Service) DeleteContentTree(ctx context.Context, contentID string) error {
	result, err := s.tree.CascadingDelete(ctx, contentID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return err
	}
	for _, authorID := range result.AuthorIDs {
		if err := s.store.PurgeAccountContentRefs(ctx, authorID, result.RemovedIDs); err != nil {
			return err
		}
	}
	for _, groupID := range result.GroupIDs {
		if err := s.store.PurgeGroupContentRefs(ctx, groupID, result.RemovedIDs); err != nil {
			return err
		}
	}
	return nil
}

// HomeFeed returns one page of top-level posts, newest first.
func (s *Service) HomeFeed(ctx context.Context, page, pageSize int) (FeedPage, error) {
	if pageSize <= 0 {
		return FeedPage{}, &store.InvalidArgumentError{Reason: "page size must be positive"}
	}
	if page < 1 {
		page = 1
	}
	skip := (page - 1) * pageSize

	posts, err := s.store.ListTopLevelContent(ctx, pageSize, skip)
	if err != nil {
		return FeedPage{}, err
	}
	total, err := s.store.CountTopLevelContent(ctx)
	if err != nil {
		return FeedPage{}, err
	}

	authors, err := s.authorSummaries(ctx, posts)
	if err != nil {
		return FeedPage{}, err
	}
	groupIDs := make([]string, 0)
	seen := map[string]bool{}
	for _, post := range posts {
		if post.GroupID != "" && !seen[post.GroupID] {
			seen[post.GroupID] = true
			groupIDs = append(groupIDs, post.GroupID)
		}
	}
	groupSummaries, err := s.store.ListGroupSummaries(ctx, groupIDs)
	if err != nil {
		return FeedPage{}, err
	}
	groups := make(map[string]store.GroupSummary, len(groupSummaries))
	for _, g := range groupSummaries {
		groups[g.ID] = g
	}

	return FeedPage{
		Posts:   posts,
		Authors: authors,
		Groups:  groups,
		Total:   total,
		HasNext: total > skip+len(posts),
	}, nil
}

// --- groups ---

// CreateGroup inserts the group with the creator as its first member and
// mirrors the membership into the creator's account. An empty id is assigned
// one; lifecycle events carry their own ids so replays stay idempotent
// upstream.
func (s *Service) CreateGroup(ctx context.Context, id, name, username, image, bio, creatorID string) error {
	if err := s.validate.Struct(groupInput{Name: name, Username: username, Bio: bio, Image: image}); err != nil {
		return validationError(err)
	}
	if creatorID == "" {
		return &store.InvalidArgumentError{Reason: "creator id is required"}
	}
	if id == "" {
		id = util.NewID("grp")
	}
	return s.store.CreateGroup(ctx, store.Group{
		ID:        id,
		Username:  username,
		Name:      name,
		Bio:       bio,
		Image:     image,
		CreatedBy: creatorID,
	})
}

func (s *Service) UpdateGroupInfo(ctx context.Context, id, name, username, image, bio string) error {
	if err := s.validate.Struct(groupInput{Name: name, Username: username, Bio: bio, Image: image}); err != nil {
		return validationError(err)
	}
	return s.store.UpdateGroupInfo(ctx, id, name, username, image, bio)
}

func (s *Service) GroupDetail(ctx context.Context, groupID string) (store.GroupDetail, error) {
	return s.store.GetGroupDetail(ctx, groupID)
}

// GroupPosts lists the group's posts in ownership-array order.
func (s *Service) GroupPosts(ctx context.Context, groupID string) ([]store.Content, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	posts, err := s.store.ListContentByIDs(ctx, group.ContentIDs)
	if err != nil {
		return nil, err
	}
	return reorderContent(group.ContentIDs, posts), nil
}

// AddMember links the account into the group on both sides. Adding an
// existing member is an error so callers learn the membership was already
// there.
func (s *Service) AddMember(ctx context.Context, groupID, accountID string) error {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	for _, memberID := range group.MemberIDs {
		if memberID == accountID {
			return store.ErrAlreadyMember
		}
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return err
	}
	if err := s.store.AppendGroupMember(ctx, groupID, accountID); err != nil {
		return err
	}
	return s.store.AppendAccountGroup(ctx, accountID, groupID)
}

// RemoveMember unlinks the account from the group on both sides. Removing an
// account that is not a member succeeds without effect.
func (s *Service) RemoveMember(ctx context.Context, accountID, groupID string) error {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return err
	}
	if err := s.store.RemoveGroupMember(ctx, groupID, accountID); err != nil {
		return err
	}
	return s.store.RemoveAccountGroup(ctx, accountID, groupID)
}

// DeleteGroupTree removes the group, every content tree it owns, and the
// membership entry on each member account.
func (s *Service) DeleteGroupTree(ctx context.Context, groupID string) error {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}

	for _, contentID := range group.ContentIDs {
		if err := s.DeleteContentTree(ctx, contentID); err != nil {
			return err
		}
	}
	for _, memberID := range group.MemberIDs {
		if err := s.store.RemoveAccountGroup(ctx, memberID, groupID); err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return err
		}
	}
	return s.store.DeleteGroupRecord(ctx, groupID)
}

func (s *Service) SearchGroups(ctx context.Context, q directory.Query) (directory.GroupPage, error) {
	return s.directory.Groups(ctx, q)
}

// --- media ---

func (s *Service) UploadImage(ctx context.Context, filename, contentType string, body io.Reader, size int64) (string, error) {
	if s.media == nil {
		return "", domainError(503, "MEDIA_UNAVAILABLE", "Image storage not configured", nil)
	}
	return s.media.UploadImage(ctx, filename, contentType, body, size)
}

// --- helpers ---

func (s *Service) authorSummaries(ctx context.Context, contents []store.Content) (map[string]store.AccountSummary, error) {
	ids := make([]string, 0)
	seen := map[string]bool{}
	for _, content := range contents {
		if content.AuthorID != "" && !seen[content.AuthorID] {
			seen[content.AuthorID] = true
			ids = append(ids, content.AuthorID)
		}
	}
	summaries, err := s.store.ListAccountSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.AccountSummary, len(summaries))
	for _, summary := range summaries {
		byID[summary.ID] = summary
	}
	return byID, nil
}

func reorderContent(ids []string, items []store.Content) []store.Content {
	byID := make(map[string]store.Content, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	ordered := make([]store.Content, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}
	return ordered
}
