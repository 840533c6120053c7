// Package directory serves the paginated, search-filtered account and group
// listings. Matching is case-insensitive substring search against username or
// name; ordering is by creation time with id tiebreak, so pages neither
// duplicate nor skip entries while the underlying set is stable.
package directory

import (
	"context"
	"strings"

	"loom/api/internal/store"
)

// Order selects the creation-time sort direction.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Query describes one directory page request. Pages are 1-based; Page < 1 is
// treated as page 1. ExcludeID drops the caller's own account from results.
type Query struct {
	Text      string
	Page      int
	PageSize  int
	Order     Order
	ExcludeID string
}

// RowSource is the slice of the store the directory reads from. The filter
// predicate and ordering contract are documented on the store methods; the
// count methods apply the same predicate unpaginated.
type RowSource interface {
	SearchAccounts(ctx context.Context, text, excludeID string, asc bool, limit, offset int) ([]store.AccountSummary, error)
	CountAccounts(ctx context.Context, text, excludeID string) (int, error)
	SearchGroups(ctx context.Context, text string, asc bool, limit, offset int) ([]store.GroupSummary, error)
	CountGroups(ctx context.Context, text string) (int, error)
}

type AccountPage struct {
	Accounts []store.AccountSummary
	Total    int
	HasNext  bool
}

type GroupPage struct {
	Groups  []store.GroupSummary
	Total   int
	HasNext bool
}

type Service struct {
	rows RowSource
}

func NewService(rows RowSource) *Service {
	return &Service{rows: rows}
}

// Accounts returns one page of matching accounts.
func (s *Service) Accounts(ctx context.Context, q Query) (AccountPage, error) {
	text, skip, asc, err := normalize(&q)
	if err != nil {
		return AccountPage{}, err
	}

	accounts, err := s.rows.SearchAccounts(ctx, text, q.ExcludeID, asc, q.PageSize, skip)
	if err != nil {
		return AccountPage{}, err
	}
	total, err := s.rows.CountAccounts(ctx, text, q.ExcludeID)
	if err != nil {
		return AccountPage{}, err
	}
	return AccountPage{
		Accounts: accounts,
		Total:    total,
		HasNext:  total > skip+len(accounts),
	}, nil
}

// Groups returns one page of matching groups.
func (s *Service) Groups(ctx context.Context, q Query) (GroupPage, error) {
	text, skip, asc, err := normalize(&q)
	if err != nil {
		return GroupPage{}, err
	}

	groups, err := s.rows.SearchGroups(ctx, text, asc, q.PageSize, skip)
	if err != nil {
		return GroupPage{}, err
	}
	total, err := s.rows.CountGroups(ctx, text)
	if err != nil {
		return GroupPage{}, err
	}
	return GroupPage{
		Groups:  groups,
		Total:   total,
		HasNext: total > skip+len(groups),
	}, nil
}

func normalize(q *Query) (text string, skip int, asc bool, err error) {
	if q.PageSize <= 0 {
		return "", 0, false, &store.InvalidArgumentError{Reason: "page size must be positive"}
	}
	if q.Page < 1 {
		q.Page = 1
	}
	return strings.TrimSpace(q.Text), (q.Page - 1) * q.PageSize, q.Order == OrderAsc, nil
}
