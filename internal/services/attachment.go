package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bloghq/apiserver/internal/storage"
	"github.com/bloghq/apiserver/types"
)

// AttachmentRepository defines persistence for attachment metadata.
type AttachmentRepository interface {
	Create(ctx context.Context, att types.Attachment) (types.Attachment, error)
	Get(ctx context.Context, postID int, filename string) (types.Attachment, error)
	ListByPost(ctx context.Context, postID int) ([]types.Attachment, error)
	Delete(ctx context.Context, postID int, filename string) error
}

// AttachmentService stores post attachments: bytes in object storage,
// metadata in the attachment repository.
type AttachmentService struct {
	repo    AttachmentRepository
	posts   PostRepository
	objects storage.ObjectStorage
}

func NewAttachmentService(repo AttachmentRepository, posts PostRepository, objects storage.ObjectStorage) *AttachmentService {
	return &AttachmentService{
		repo:    repo,
		posts:   posts,
		objects: objects,
	}
}

// Upload stores the file under posts/{postID}/{filename} and records its
// metadata. The post must exist; the filename must not already be taken
// for that post. The metadata row is inserted before the object is
// written, so a duplicate filename is rejected without ever touching the
// stored bytes of the existing attachment.
func (s *AttachmentService) Upload(ctx context.Context, postID int, filename, contentType string, r io.Reader, size int64) (types.Attachment, error) {
	if err := validateFilename(filename); err != nil {
		return types.Attachment{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := s.posts.Get(ctx, postID); err != nil {
		return types.Attachment{}, err
	}

	att, err := s.repo.Create(ctx, types.Attachment{
		PostID:      postID,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
	})
	if err != nil {
		return types.Attachment{}, err
	}

	if err := s.objects.Put(ctx, objectKey(postID, filename), r, size, contentType); err != nil {
		// The object write failed; roll back the metadata row this
		// request created.
		_ = s.repo.Delete(ctx, postID, filename)
		return types.Attachment{}, fmt.Errorf("store attachment: %w", err)
	}
	return att, nil
}

// Open returns the attachment metadata and a reader over its contents.
// The caller closes the reader.
func (s *AttachmentService) Open(ctx context.Context, postID int, filename string) (types.Attachment, io.ReadCloser, error) {
	att, err := s.repo.Get(ctx, postID, filename)
	if err != nil {
		return types.Attachment{}, nil, err
	}

	rc, err := s.objects.Get(ctx, objectKey(postID, filename))
	if err != nil {
		return types.Attachment{}, nil, fmt.Errorf("open attachment: %w", err)
	}
	return att, rc, nil
}

// List returns the attachments recorded for a post.
func (s *AttachmentService) List(ctx context.Context, postID int) ([]types.Attachment, error) {
	if _, err := s.posts.Get(ctx, postID); err != nil {
		return nil, err
	}
	return s.repo.ListByPost(ctx, postID)
}

// Remove deletes the metadata record and then the stored object.
func (s *AttachmentService) Remove(ctx context.Context, postID int, filename string) error {
	if err := s.repo.Delete(ctx, postID, filename); err != nil {
		return err
	}
	if err := s.objects.Delete(ctx, objectKey(postID, filename)); err != nil {
		return fmt.Errorf("delete attachment object: %w", err)
	}
	return nil
}

func validateFilename(filename string) error {
	if filename == "" ||
		strings.ContainsAny(filename, "/\\") ||
		filename == "." || filename == ".." {
		return fmt.Errorf("%w: invalid filename", ErrValidation)
	}
	return nil
}

func objectKey(postID int, filename string) string {
	return fmt.Sprintf("posts/%d/%s", postID, filename)
}
