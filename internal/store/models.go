package store

import "time"

// Account is a person. ContentIDs and GroupIDs are the account's side of the
// bidirectional ownership/membership arrays; the app layer keeps them in sync
// with the content and group rows on every mutation.
type Account struct {
	ID           string
	Username     string
	Name         string
	Bio          string
	Image        string
	Onboarded    bool
	PasswordHash string
	ContentIDs   []string
	GroupIDs     []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Content is a unit of posted text, used for both top-level posts and
// replies. ParentID is empty for top-level content. Rows are immutable after
// creation except for ChildIDs.
type Content struct {
	ID        string
	Body      string
	AuthorID  string
	GroupID   string
	ParentID  string
	ChildIDs  []string
	CreatedAt time.Time
}

// TopLevel reports whether the content is a post rather than a reply.
func (c Content) TopLevel() bool {
	return c.ParentID == ""
}

// Group is a named collection of accounts sharing a content feed. MemberIDs
// always contains CreatedBy.
type Group struct {
	ID         string
	Username   string
	Name       string
	Bio        string
	Image      string
	CreatedBy  string
	MemberIDs  []string
	ContentIDs []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AccountSummary is the slice of an account embedded in joined views.
type AccountSummary struct {
	ID       string
	Username string
	Name     string
	Image    string
}

// GroupSummary is the slice of a group embedded in joined views.
type GroupSummary struct {
	ID       string
	Username string
	Name     string
	Image    string
}

// AccountWithGroups is an account joined with summaries of the groups it
// belongs to.
type AccountWithGroups struct {
	Account
	Groups []GroupSummary
}

// GroupDetail is a group joined with its creator and member summaries.
type GroupDetail struct {
	Group
	Creator AccountSummary
	Members []AccountSummary
}
