package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/bloghq/apiserver/internal/store"
	"github.com/bloghq/apiserver/types"
)

// Sort parameter values accepted by the listing endpoints.
const (
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"
	SortByTitle     = "title"

	SortAscending  = "ascending"
	SortDescending = "descending"
)

// sortFields maps API sort names to their database columns. Anything
// outside this map is a validation error.
var sortFields = map[string]string{
	SortByCreatedAt: "created_at",
	SortByUpdatedAt: "updated_at",
	SortByTitle:     "title",
}

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	List(ctx context.Context, filter store.PostFilter, sort store.PostSort) ([]types.Post, error)
	Get(ctx context.Context, id int) (types.Post, error)
	Create(ctx context.Context, post types.Post) (types.Post, error)
	Update(ctx context.Context, post types.Post) (types.Post, error)
	Delete(ctx context.Context, id int) error
}

// PostService encapsulates post use-cases: CRUD plus author-name
// resolution on the read path.
type PostService struct {
	repo PostRepository
}

func NewPostService(repo PostRepository) *PostService {
	return &PostService{repo: repo}
}

// ListAll returns every post, sorted as requested.
func (s *PostService) ListAll(ctx context.Context, sortBy, sortOrder string) ([]types.Post, error) {
	return s.list(ctx, store.PostFilter{}, sortBy, sortOrder)
}

// ListByAuthor returns the posts written by the given user.
func (s *PostService) ListByAuthor(ctx context.Context, authorID int, sortBy, sortOrder string) ([]types.Post, error) {
	return s.list(ctx, store.PostFilter{AuthorID: authorID}, sortBy, sortOrder)
}

// ListByTag returns the posts carrying the given tag.
func (s *PostService) ListByTag(ctx context.Context, tag string, sortBy, sortOrder string) ([]types.Post, error) {
	return s.list(ctx, store.PostFilter{Tag: tag}, sortBy, sortOrder)
}

func (s *PostService) list(ctx context.Context, filter store.PostFilter, sortBy, sortOrder string) ([]types.Post, error) {
	if sortBy == "" {
		sortBy = SortByCreatedAt
	}
	if sortOrder == "" {
		sortOrder = SortDescending
	}

	column, ok := sortFields[sortBy]
	if !ok {
		return nil, fmt.Errorf("%w: unknown sort field %q", ErrValidation, sortBy)
	}

	var descending bool
	switch sortOrder {
	case SortAscending:
	case SortDescending:
		descending = true
	default:
		return nil, fmt.Errorf("%w: unknown sort order %q", ErrValidation, sortOrder)
	}

	return s.repo.List(ctx, filter, store.PostSort{Column: column, Descending: descending})
}

// Get returns a single post with its author resolved to a username.
func (s *PostService) Get(ctx context.Context, id int) (types.Post, error) {
	return s.repo.Get(ctx, id)
}

// Create persists a new post. The caller is responsible for resolving
// the author's username to an existing user id; Create trusts the id it
// is given.
func (s *PostService) Create(ctx context.Context, post types.Post) (types.Post, error) {
	if err := validatePost(post); err != nil {
		return types.Post{}, err
	}
	return s.repo.Create(ctx, post)
}

// Update fully replaces a post's title, author, contents, and tags.
// Fields the caller leaves zero are cleared, not preserved.
func (s *PostService) Update(ctx context.Context, post types.Post) (types.Post, error) {
	if err := validatePost(post); err != nil {
		return types.Post{}, err
	}
	return s.repo.Update(ctx, post)
}

// Delete removes a post. Deleting an absent id returns store.ErrNotFound
// every time; it never escalates.
func (s *PostService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

func validatePost(post types.Post) error {
	if strings.TrimSpace(post.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if post.AuthorID < 1 {
		return fmt.Errorf("%w: author is required", ErrValidation)
	}
	return nil
}
