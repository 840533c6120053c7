package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const accountColumns = `id, username, name, bio, image, onboarded, password_hash, content_ids, group_ids, created_at, updated_at`

func scanAccount(row *sql.Row) (Account, error) {
	var a Account
	var contentRaw, groupRaw []byte
	err := row.Scan(&a.ID, &a.Username, &a.Name, &a.Bio, &a.Image, &a.Onboarded, &a.PasswordHash, &contentRaw, &groupRaw, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	a.ContentIDs = decodeIDList(contentRaw)
	a.GroupIDs = decodeIDList(groupRaw)
	return a, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, accountID string) (Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, accountID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, &NotFoundError{Kind: "account", ID: accountID}
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username=$1`, username)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, &NotFoundError{Kind: "account", ID: username}
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account by username: %w", err)
	}
	return account, nil
}

// GetAccountWithGroups joins the account with summaries of its groups,
// resolved by a targeted follow-up lookup on the membership array.
func (s *PostgresStore) GetAccountWithGroups(ctx context.Context, accountID string) (AccountWithGroups, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return AccountWithGroups{}, err
	}
	groups, err := s.ListGroupSummaries(ctx, account.GroupIDs)
	if err != nil {
		return AccountWithGroups{}, err
	}
	return AccountWithGroups{Account: account, Groups: groups}, nil
}

// CreateAccount inserts a fresh account row with credentials. The profile
// stays empty and onboarded false until the first UpsertAccount.
func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, name, password_hash)
		VALUES ($1, LOWER($2), $3, $4)
	`, account.ID, account.Username, account.Name, account.PasswordHash)
	if isUniqueViolation(err) {
		return &DuplicateKeyError{Field: "username", Value: strings.ToLower(account.Username)}
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// UpsertAccount creates the profile if absent, else merges the submitted
// fields, lower-casing the username and marking onboarding complete. Repeated
// identical calls are idempotent.
func (s *PostgresStore) UpsertAccount(ctx context.Context, accountID, username, name, bio, image string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, name, bio, image, onboarded)
		VALUES ($1, LOWER($2), $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE
		SET username=EXCLUDED.username, name=EXCLUDED.name, bio=EXCLUDED.bio, image=EXCLUDED.image, onboarded=TRUE, updated_at=NOW()
	`, accountID, username, name, bio, image)
	if isUniqueViolation(err) {
		return &DuplicateKeyError{Field: "username", Value: strings.ToLower(username)}
	}
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// AppendAccountContent appends a content id to the account's owned-content
// list.
func (s *PostgresStore) AppendAccountContent(ctx context.Context, accountID, contentID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET content_ids = content_ids || to_jsonb($2::text), updated_at=NOW()
		WHERE id=$1
	`, accountID, contentID)
	if err != nil {
		return fmt.Errorf("append account content: %w", err)
	}
	return requireRow(result, "account", accountID)
}

// AppendAccountGroup appends a group id to the account's membership list.
func (s *PostgresStore) AppendAccountGroup(ctx context.Context, accountID, groupID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET group_ids = group_ids || to_jsonb($2::text), updated_at=NOW()
		WHERE id=$1
	`, accountID, groupID)
	if err != nil {
		return fmt.Errorf("append account group: %w", err)
	}
	return requireRow(result, "account", accountID)
}

// RemoveAccountGroup removes a group id from the account's membership list.
// Removing an id that is not present is a no-op.
func (s *PostgresStore) RemoveAccountGroup(ctx context.Context, accountID, groupID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET group_ids = group_ids - $2::text, updated_at=NOW()
		WHERE id=$1
	`, accountID, groupID)
	if err != nil {
		return fmt.Errorf("remove account group: %w", err)
	}
	return requireRow(result, "account", accountID)
}

// PurgeAccountContentRefs deletes every id in contentIDs from the account's
// owned-content list. Ids that are not present are skipped, so repeating the
// cleanup is always safe. Surviving ids keep their original order.
func (s *PostgresStore) PurgeAccountContentRefs(ctx context.Context, accountID string, contentIDs []string) error {
	if len(contentIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET content_ids = (
			SELECT COALESCE(jsonb_agg(el ORDER BY ord), '[]'::jsonb)
			FROM jsonb_array_elements_text(accounts.content_ids) WITH ORDINALITY AS refs(el, ord)
			WHERE NOT (el = ANY($2::text[]))
		), updated_at=NOW()
		WHERE id=$1
	`, accountID, contentIDs)
	if err != nil {
		return fmt.Errorf("purge account content refs: %w", err)
	}
	return nil
}

// ListAccountSummaries resolves ids to summaries, preserving the order of
// ids. Missing ids are skipped; callers that care treat the gap as an
// invariant violation.
func (s *PostgresStore) ListAccountSummaries(ctx context.Context, ids []string) ([]AccountSummary, error) {
	if len(ids) == 0 {
		return []AccountSummary{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, name, image FROM accounts WHERE id = ANY($1::text[])
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list account summaries: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]AccountSummary, len(ids))
	for rows.Next() {
		var item AccountSummary
		if err := rows.Scan(&item.ID, &item.Username, &item.Name, &item.Image); err != nil {
			return nil, fmt.Errorf("scan account summary: %w", err)
		}
		byID[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account summaries: %w", err)
	}

	items := make([]AccountSummary, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// SearchAccounts returns one page of accounts whose username or name
// contains text (case-insensitive). Ordering is by creation time with id as
// tiebreak so pages are stable for a fixed underlying set.
func (s *PostgresStore) SearchAccounts(ctx context.Context, text, excludeID string, asc bool, limit, offset int) ([]AccountSummary, error) {
	text = escapeLike(text)
	dir := orderDirection(asc)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, username, name, image
		FROM accounts
		WHERE ($1 = '' OR username ILIKE '%%' || $1 || '%%' OR name ILIKE '%%' || $1 || '%%')
		  AND ($2 = '' OR id <> $2)
		ORDER BY created_at %s, id %s
		LIMIT $3 OFFSET $4
	`, dir, dir), text, excludeID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	defer rows.Close()

	items := make([]AccountSummary, 0)
	for rows.Next() {
		var item AccountSummary
		if err := rows.Scan(&item.ID, &item.Username, &item.Name, &item.Image); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return items, nil
}

// CountAccounts counts all accounts matching the same predicate as
// SearchAccounts, unpaginated.
func (s *PostgresStore) CountAccounts(ctx context.Context, text, excludeID string) (int, error) {
	text = escapeLike(text)
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM accounts
		WHERE ($1 = '' OR username ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR id <> $2)
	`, text, excludeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return count, nil
}

func requireRow(result sql.Result, kind, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s rows: %w", kind, err)
	}
	if affected == 0 {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return nil
}
