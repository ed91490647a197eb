package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bloghq/apiserver/internal/mq"
	"github.com/bloghq/apiserver/internal/services"
	"github.com/bloghq/apiserver/internal/store"
	"github.com/bloghq/apiserver/types"
)

// PostHandler provides HTTP handlers for posts.
type PostHandler struct {
	posts  *services.PostService
	users  *services.UserService
	events *mq.EventPublisher
}

func NewPostHandler(posts *services.PostService, users *services.UserService, events *mq.EventPublisher) *PostHandler {
	return &PostHandler{
		posts:  posts,
		users:  users,
		events: events,
	}
}

// PostRouter registers post routes on the given router. Reads are
// public; mutations require authentication.
func PostRouter(
	r chi.Router,
	posts *services.PostService,
	users *services.UserService,
	events *mq.EventPublisher,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewPostHandler(posts, users, events)

	r.Get("/", handler.ListPosts)
	r.With(authMiddleware).Post("/", handler.CreatePost)
	r.Route("/{postID}", func(r chi.Router) {
		r.Get("/", handler.GetPost)
		r.With(authMiddleware).Patch("/", handler.UpdatePost)
		r.With(authMiddleware).Delete("/", handler.DeletePost)
	})
}

// PostUpsertRequest is the payload for creating or replacing a post. The
// author is given by username and resolved to a user id before the post
// service is invoked.
type PostUpsertRequest struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Contents string   `json:"contents"`
	Tags     []string `json:"tags"`
}

// ListPosts returns posts filtered by author or tag (never both) and
// sorted by the requested field.
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	author := strings.TrimSpace(query.Get("author"))
	tag := strings.TrimSpace(query.Get("tag"))
	sortBy := strings.TrimSpace(query.Get("sortBy"))
	sortOrder := strings.TrimSpace(query.Get("sortOrder"))

	if author != "" && tag != "" {
		writeError(w, http.StatusBadRequest, "query by either author or tag, not both")
		return
	}

	var (
		posts []types.Post
		err   error
	)
	switch {
	case author != "":
		var authorID int
		authorID, err = h.users.ResolveID(r.Context(), author)
		if errors.Is(err, store.ErrNotFound) {
			// Unknown author filters match nothing.
			writeJSON(w, http.StatusOK, []types.Post{})
			return
		}
		if err == nil {
			posts, err = h.posts.ListByAuthor(r.Context(), authorID, sortBy, sortOrder)
		}
	case tag != "":
		posts, err = h.posts.ListByTag(r.Context(), tag, sortBy, sortOrder)
	default:
		posts, err = h.posts.ListAll(r.Context(), sortBy, sortOrder)
	}
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}

	writeJSON(w, http.StatusOK, posts)
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := parsePostID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	post, err := h.posts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch post")
		return
	}

	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	req, authorID, ok := h.parseUpsert(w, r)
	if !ok {
		return
	}

	created, err := h.posts.Create(r.Context(), types.Post{
		Title:    req.Title,
		AuthorID: authorID,
		Contents: req.Contents,
		Tags:     req.Tags,
	})
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create post")
		return
	}
	// The store returns the raw record; the author's username is already
	// known from the request.
	created.Author = req.Author

	h.publishPostEvent(r, mq.EventPostCreated, created)
	writeJSON(w, http.StatusCreated, created)
}

// UpdatePost replaces the post's title, author, contents, and tags.
// Every field must be resupplied; omitted contents or tags are cleared.
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, err := parsePostID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, authorID, ok := h.parseUpsert(w, r)
	if !ok {
		return
	}

	updated, err := h.posts.Update(r.Context(), types.Post{
		ID:       id,
		Title:    req.Title,
		AuthorID: authorID,
		Contents: req.Contents,
		Tags:     req.Tags,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "post not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to update post")
		}
		return
	}

	h.publishPostEvent(r, mq.EventPostUpdated, updated)
	writeJSON(w, http.StatusOK, updated)
}

func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := parsePostID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.posts.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete post")
		return
	}

	h.publishPostEvent(r, mq.EventPostDeleted, types.Post{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

// parseUpsert decodes a create/replace payload and resolves the author
// username to an existing user id. On failure it writes the response and
// returns ok=false.
func (h *PostHandler) parseUpsert(w http.ResponseWriter, r *http.Request) (PostUpsertRequest, int, bool) {
	var req PostUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return PostUpsertRequest{}, 0, false
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	if req.Title == "" || req.Author == "" {
		writeError(w, http.StatusBadRequest, "title and author are required")
		return PostUpsertRequest{}, 0, false
	}

	authorID, err := h.users.ResolveID(r.Context(), req.Author)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "unknown author")
			return PostUpsertRequest{}, 0, false
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve author")
		return PostUpsertRequest{}, 0, false
	}

	return req, authorID, true
}

func (h *PostHandler) publishPostEvent(r *http.Request, eventType string, post types.Post) {
	payload := map[string]any{
		"id":     post.ID,
		"title":  post.Title,
		"author": post.Author,
	}
	if claims, err := claimsFromContext(r.Context()); err == nil {
		payload["actor"] = claims.Username
	}
	h.events.Publish(r.Context(), eventType, payload)
}

func parsePostID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "postID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid post id")
	}
	return id, nil
}
