package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const groupColumns = `id, username, name, bio, image, created_by, member_ids, content_ids, created_at, updated_at`

func scanGroup(row *sql.Row) (Group, error) {
	var g Group
	var memberRaw, contentRaw []byte
	err := row.Scan(&g.ID, &g.Username, &g.Name, &g.Bio, &g.Image, &g.CreatedBy, &memberRaw, &contentRaw, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return Group{}, err
	}
	g.MemberIDs = decodeIDList(memberRaw)
	g.ContentIDs = decodeIDList(contentRaw)
	return g, nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, groupID string) (Group, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE id=$1`, groupID)
	group, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, &NotFoundError{Kind: "group", ID: groupID}
	}
	if err != nil {
		return Group{}, fmt.Errorf("get group: %w", err)
	}
	return group, nil
}

// GetGroupDetail joins the group with its creator and member summaries,
// resolved by targeted follow-up lookups on the stored id arrays.
func (s *PostgresStore) GetGroupDetail(ctx context.Context, groupID string) (GroupDetail, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return GroupDetail{}, err
	}
	creators, err := s.ListAccountSummaries(ctx, []string{group.CreatedBy})
	if err != nil {
		return GroupDetail{}, err
	}
	detail := GroupDetail{Group: group}
	if len(creators) > 0 {
		detail.Creator = creators[0]
	}
	detail.Members, err = s.ListAccountSummaries(ctx, group.MemberIDs)
	if err != nil {
		return GroupDetail{}, err
	}
	return detail, nil
}

// CreateGroup inserts the group row with the creator seeded into the member
// list, then appends the group to the creator's membership array. The member
// list of a group always contains its creator.
func (s *PostgresStore) CreateGroup(ctx context.Context, group Group) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id=$1)`, group.CreatedBy).Scan(&exists); err != nil {
		return fmt.Errorf("check group creator: %w", err)
	}
	if !exists {
		return &NotFoundError{Kind: "account", ID: group.CreatedBy}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (id, username, name, bio, image, created_by, member_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`, group.ID, group.Username, group.Name, group.Bio, group.Image, group.CreatedBy, encodeIDList([]string{group.CreatedBy}))
	if constraint := uniqueConstraintName(err); constraint != "" {
		// A replayed id hits the primary key, not the username index.
		if strings.HasSuffix(constraint, "_pkey") {
			return &DuplicateKeyError{Field: "id", Value: group.ID}
		}
		return &DuplicateKeyError{Field: "username", Value: group.Username}
	}
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}

	return s.AppendAccountGroup(ctx, group.CreatedBy, group.ID)
}

func (s *PostgresStore) UpdateGroupInfo(ctx context.Context, groupID, name, username, image, bio string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE groups SET name=$2, username=$3, image=$4, bio=$5, updated_at=NOW()
		WHERE id=$1
	`, groupID, name, username, image, bio)
	if isUniqueViolation(err) {
		return &DuplicateKeyError{Field: "username", Value: username}
	}
	if err != nil {
		return fmt.Errorf("update group info: %w", err)
	}
	return requireRow(result, "group", groupID)
}

// DeleteGroupRecord removes the group row only. Cascading into owned content
// and member back-references is the app layer's job.
func (s *PostgresStore) DeleteGroupRecord(ctx context.Context, groupID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID)
	if err != nil {
		return fmt.Errorf("delete group record: %w", err)
	}
	return nil
}

// AppendGroupContent appends a content id to the group's owned-content list.
func (s *PostgresStore) AppendGroupContent(ctx context.Context, groupID, contentID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE groups SET content_ids = content_ids || to_jsonb($2::text), updated_at=NOW()
		WHERE id=$1
	`, groupID, contentID)
	if err != nil {
		return fmt.Errorf("append group content: %w", err)
	}
	return requireRow(result, "group", groupID)
}

// AppendGroupMember appends an account id to the group's member list.
func (s *PostgresStore) AppendGroupMember(ctx context.Context, groupID, accountID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE groups SET member_ids = member_ids || to_jsonb($2::text), updated_at=NOW()
		WHERE id=$1
	`, groupID, accountID)
	if err != nil {
		return fmt.Errorf("append group member: %w", err)
	}
	return requireRow(result, "group", groupID)
}

// RemoveGroupMember removes an account id from the group's member list.
// Removing an id that is not present is a no-op.
func (s *PostgresStore) RemoveGroupMember(ctx context.Context, groupID, accountID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE groups SET member_ids = member_ids - $2::text, updated_at=NOW()
		WHERE id=$1
	`, groupID, accountID)
	if err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	return requireRow(result, "group", groupID)
}

// PurgeGroupContentRefs deletes every id in contentIDs from the group's
// owned-content list, skipping ids that are not present. Surviving ids keep
// their original order.
func (s *PostgresStore) PurgeGroupContentRefs(ctx context.Context, groupID string, contentIDs []string) error {
	if len(contentIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE groups
		SET content_ids = (
			SELECT COALESCE(jsonb_agg(el ORDER BY ord), '[]'::jsonb)
			FROM jsonb_array_elements_text(groups.content_ids) WITH ORDINALITY AS refs(el, ord)
			WHERE NOT (el = ANY($2::text[]))
		), updated_at=NOW()
		WHERE id=$1
	`, groupID, contentIDs)
	if err != nil {
		return fmt.Errorf("purge group content refs: %w", err)
	}
	return nil
}

// ListGroupSummaries resolves ids to summaries, preserving the order of ids.
func (s *PostgresStore) ListGroupSummaries(ctx context.Context, ids []string) ([]GroupSummary, error) {
	if len(ids) == 0 {
		return []GroupSummary{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, name, image FROM groups WHERE id = ANY($1::text[])
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list group summaries: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]GroupSummary, len(ids))
	for rows.Next() {
		var item GroupSummary
		if err := rows.Scan(&item.ID, &item.Username, &item.Name, &item.Image); err != nil {
			return nil, fmt.Errorf("scan group summary: %w", err)
		}
		byID[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group summaries: %w", err)
	}

	items := make([]GroupSummary, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// SearchGroups returns one page of groups whose username or name contains
// text (case-insensitive), ordered by creation time with id tiebreak.
func (s *PostgresStore) SearchGroups(ctx context.Context, text string, asc bool, limit, offset int) ([]GroupSummary, error) {
	text = escapeLike(text)
	dir := orderDirection(asc)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, username, name, image
		FROM groups
		WHERE ($1 = '' OR username ILIKE '%%' || $1 || '%%' OR name ILIKE '%%' || $1 || '%%')
		ORDER BY created_at %s, id %s
		LIMIT $2 OFFSET $3
	`, dir, dir), text, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search groups: %w", err)
	}
	defer rows.Close()

	items := make([]GroupSummary, 0)
	for rows.Next() {
		var item GroupSummary
		if err := rows.Scan(&item.ID, &item.Username, &item.Name, &item.Image); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return items, nil
}

// CountGroups counts all groups matching the same predicate as SearchGroups.
func (s *PostgresStore) CountGroups(ctx context.Context, text string) (int, error) {
	text = escapeLike(text)
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM groups
		WHERE ($1 = '' OR username ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')
	`, text).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count groups: %w", err)
	}
	return count, nil
}
