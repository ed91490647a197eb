package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bloghq/apiserver/types"
)

// PostFilter narrows a post listing. Zero values mean "no filter".
type PostFilter struct {
	AuthorID int
	Tag      string
}

// PostSort names the sort column and direction for a post listing.
type PostSort struct {
	Column     string
	Descending bool
}

// sortColumns whitelists the columns a listing may be ordered by. SQL is
// assembled by string concatenation, so only these names ever reach the
// ORDER BY clause.
var sortColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"title":      true,
}

// PostRepository handles persistence for posts.
type PostRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

// List returns posts matching the filter, ordered by the requested sort
// column with id ascending as a deterministic tie-break. Each post's
// author reference is resolved to the username via a join against users.
func (r *PostRepository) List(ctx context.Context, filter PostFilter, sort PostSort) ([]types.Post, error) {
	if !sortColumns[sort.Column] {
		return nil, fmt.Errorf("unsupported sort column %q", sort.Column)
	}
	direction := "ASC"
	if sort.Descending {
		direction = "DESC"
	}

	var (
		conditions []string
		args       []any
	)
	if filter.AuthorID != 0 {
		args = append(args, filter.AuthorID)
		conditions = append(conditions, fmt.Sprintf("p.author_id = $%d", len(args)))
	}
	if filter.Tag != "" {
		tagJSON, err := json.Marshal([]string{filter.Tag})
		if err != nil {
			return nil, err
		}
		args = append(args, tagJSON)
		conditions = append(conditions, fmt.Sprintf("p.tags @> $%d::jsonb", len(args)))
	}

	query := `
		SELECT p.id, p.title, u.username, p.author_id, p.contents, p.tags, p.created_at, p.updated_at
		FROM posts p
		JOIN users u ON u.id = p.author_id`
	if len(conditions) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf("\n\t\tORDER BY p.%s %s, p.id ASC", sort.Column, direction)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]types.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows.Scan)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return posts, nil
}

func (r *PostRepository) Get(ctx context.Context, id int) (types.Post, error) {
	const query = `
		SELECT p.id, p.title, u.username, p.author_id, p.contents, p.tags, p.created_at, p.updated_at
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Post{}, ErrNotFound
		}
		return types.Post{}, err
	}
	return post, nil
}

func (r *PostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	now := time.Now()
	post.CreatedAt = now
	post.UpdatedAt = now

	tagsJSON, err := json.Marshal(tagsOrEmpty(post.Tags))
	if err != nil {
		return types.Post{}, err
	}

	const query = `
		INSERT INTO posts (title, author_id, contents, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		post.Title,
		post.AuthorID,
		post.Contents,
		tagsJSON,
		post.CreatedAt,
		post.UpdatedAt,
	).Scan(&post.ID); err != nil {
		return types.Post{}, err
	}

	return post, nil
}

// Update replaces title, author, contents, and tags of an existing post.
// All four fields are written unconditionally; there is no partial patch.
func (r *PostRepository) Update(ctx context.Context, post types.Post) (types.Post, error) {
	post.UpdatedAt = time.Now()

	tagsJSON, err := json.Marshal(tagsOrEmpty(post.Tags))
	if err != nil {
		return types.Post{}, err
	}

	const query = `
		UPDATE posts
		SET title = $1,
			author_id = $2,
			contents = $3,
			tags = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		post.Title,
		post.AuthorID,
		post.Contents,
		tagsJSON,
		post.UpdatedAt,
		post.ID,
	)
	if err != nil {
		return types.Post{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Post{}, err
	}
	if affected == 0 {
		return types.Post{}, ErrNotFound
	}

	return r.Get(ctx, post.ID)
}

func (r *PostRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM posts WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
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

func scanPost(scan func(dest ...any) error) (types.Post, error) {
	var post types.Post
	var tagsJSON []byte
	if err := scan(
		&post.ID,
		&post.Title,
		&post.Author,
		&post.AuthorID,
		&post.Contents,
		&tagsJSON,
		&post.CreatedAt,
		&post.UpdatedAt,
	); err != nil {
		return types.Post{}, err
	}
	if err := json.Unmarshal(tagsJSON, &post.Tags); err != nil {
		return types.Post{}, fmt.Errorf("decode post tags: %w", err)
	}
	return post, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
