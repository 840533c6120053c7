package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const contentColumns = `id, body, author_id, COALESCE(group_id, ''), COALESCE(parent_id, ''), child_ids, created_at`

func scanContentRow(scan func(dest ...any) error) (Content, error) {
	var c Content
	var childRaw []byte
	err := scan(&c.ID, &c.Body, &c.AuthorID, &c.GroupID, &c.ParentID, &childRaw, &c.CreatedAt)
	if err != nil {
		return Content{}, err
	}
	c.ChildIDs = decodeIDList(childRaw)
	return c, nil
}

// InsertContent writes a content row. Empty GroupID and ParentID are stored
// as NULL. The row never changes afterwards except for its children list.
func (s *PostgresStore) InsertContent(ctx context.Context, content Content) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contents (id, body, author_id, group_id, parent_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
	`, content.ID, content.Body, content.AuthorID, content.GroupID, content.ParentID)
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetContent(ctx context.Context, contentID string) (Content, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM contents WHERE id=$1`, contentID)
	content, err := scanContentRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Content{}, &NotFoundError{Kind: "content", ID: contentID}
	}
	if err != nil {
		return Content{}, fmt.Errorf("get content: %w", err)
	}
	return content, nil
}

// ListContentByIDs loads the given rows in no particular order. Missing ids
// are simply absent from the result.
func (s *PostgresStore) ListContentByIDs(ctx context.Context, ids []string) ([]Content, error) {
	if len(ids) == 0 {
		return []Content{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+contentColumns+` FROM contents WHERE id = ANY($1::text[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("list content by ids: %w", err)
	}
	defer rows.Close()

	items := make([]Content, 0, len(ids))
	for rows.Next() {
		item, err := scanContentRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contents: %w", err)
	}
	return items, nil
}

// DeleteContentRows removes the given rows. Ids that are already gone are
// skipped, so a retried or overlapping cascade is a no-op here.
func (s *PostgresStore) DeleteContentRows(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM contents WHERE id = ANY($1::text[])`, ids)
	if err != nil {
		return fmt.Errorf("delete content rows: %w", err)
	}
	return nil
}

// AppendChild appends childID to the parent's children list.
func (s *PostgresStore) AppendChild(ctx context.Context, parentID, childID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE contents SET child_ids = child_ids || to_jsonb($2::text)
		WHERE id=$1
	`, parentID, childID)
	if err != nil {
		return fmt.Errorf("append child: %w", err)
	}
	return requireRow(result, "content", parentID)
}

// ListTopLevelContent returns one page of top-level posts, newest first with
// id tiebreak.
func (s *PostgresStore) ListTopLevelContent(ctx context.Context, limit, offset int) ([]Content, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contentColumns+`
		FROM contents
		WHERE parent_id IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list top-level content: %w", err)
	}
	defer rows.Close()

	items := make([]Content, 0)
	for rows.Next() {
		item, err := scanContentRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountTopLevelContent(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contents WHERE parent_id IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count top-level content: %w", err)
	}
	return count, nil
}

// ListContentIDsByAuthor returns the ids of every content row the account
// wrote, replies included, oldest first.
func (s *PostgresStore) ListContentIDsByAuthor(ctx context.Context, authorID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM contents WHERE author_id=$1 ORDER BY created_at ASC, id ASC
	`, authorID)
	if err != nil {
		return nil, fmt.Errorf("list content ids by author: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan content id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content ids: %w", err)
	}
	return ids, nil
}

// ListRepliesToContent returns replies whose parent is any of parentIDs,
// excluding those written by excludeAuthor, oldest first.
func (s *PostgresStore) ListRepliesToContent(ctx context.Context, parentIDs []string, excludeAuthor string) ([]Content, error) {
	if len(parentIDs) == 0 {
		return []Content{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contentColumns+`
		FROM contents
		WHERE parent_id = ANY($1::text[])
		  AND ($2 = '' OR author_id <> $2)
		ORDER BY created_at ASC, id ASC
	`, parentIDs, excludeAuthor)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	items := make([]Content, 0)
	for rows.Next() {
		item, err := scanContentRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}
	return items, nil
}
