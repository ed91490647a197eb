package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bloghq/apiserver/types"
	"github.com/lib/pq"
)

// AttachmentRepository handles metadata for post attachments. The file
// contents themselves live in object storage.
type AttachmentRepository struct {
	db *sql.DB
}

func NewAttachmentRepository(db *sql.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

func (r *AttachmentRepository) Create(ctx context.Context, att types.Attachment) (types.Attachment, error) {
	att.CreatedAt = time.Now()

	const query = `
		INSERT INTO post_attachments (post_id, filename, content_type, size, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := r.db.QueryRowContext(
		ctx,
		query,
		att.PostID,
		att.Filename,
		att.ContentType,
		att.Size,
		att.CreatedAt,
	).Scan(&att.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return types.Attachment{}, ErrDuplicate
		}
		return types.Attachment{}, err
	}
	return att, nil
}

func (r *AttachmentRepository) Get(ctx context.Context, postID int, filename string) (types.Attachment, error) {
	const query = `
		SELECT id, post_id, filename, content_type, size, created_at
		FROM post_attachments
		WHERE post_id = $1 AND filename = $2`
	var att types.Attachment
	err := r.db.QueryRowContext(ctx, query, postID, filename).Scan(
		&att.ID,
		&att.PostID,
		&att.Filename,
		&att.ContentType,
		&att.Size,
		&att.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Attachment{}, ErrNotFound
		}
		return types.Attachment{}, err
	}
	return att, nil
}

func (r *AttachmentRepository) ListByPost(ctx context.Context, postID int) ([]types.Attachment, error) {
	const query = `
		SELECT id, post_id, filename, content_type, size, created_at
		FROM post_attachments
		WHERE post_id = $1
		ORDER BY filename`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attachments := make([]types.Attachment, 0)
	for rows.Next() {
		var att types.Attachment
		if err := rows.Scan(
			&att.ID,
			&att.PostID,
			&att.Filename,
			&att.ContentType,
			&att.Size,
			&att.CreatedAt,
		); err != nil {
			return nil, err
		}
		attachments = append(attachments, att)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attachments, nil
}

func (r *AttachmentRepository) Delete(ctx context.Context, postID int, filename string) error {
	const query = `DELETE FROM post_attachments WHERE post_id = $1 AND filename = $2`
	result, err := r.db.ExecContext(ctx, query, postID, filename)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
