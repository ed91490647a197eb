package types

import "time"

// Post represents a blog post.
//
// Internally a post references its author by user ID. Read paths resolve
// that reference into the author's username, so API responses carry
// Author and never AuthorID.
type Post struct {
	// ID is the unique identifier of the post.
	ID int `json:"id" db:"id"`

	// Title is the human-readable title of the post.
	Title string `json:"title" db:"title"`

	// Author is the username of the post's author, resolved from
	// AuthorID when the post is read.
	Author string `json:"author" db:"author"`

	// AuthorID is the identifier of the user who wrote the post.
	AuthorID int `json:"-" db:"author_id"`

	// Contents is the body of the post. It may be empty.
	Contents string `json:"contents" db:"contents"`

	// Tags are free-form labels associated with the post, used for
	// categorization and filtering.
	Tags []string `json:"tags" db:"tags"`

	// CreatedAt is the timestamp at which the post was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the post.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Attachment represents a binary file stored alongside a post, such as
// an inline image. The file contents live in object storage under
// posts/{postID}/{filename}; this record carries the metadata.
type Attachment struct {
	// ID is the unique identifier of the attachment.
	ID int `json:"id" db:"id"`

	// PostID is the identifier of the post this attachment belongs to.
	PostID int `json:"post_id" db:"post_id"`

	// Filename is the name of the attachment within its post. It is
	// unique per post.
	Filename string `json:"filename" db:"filename"`

	// ContentType is the MIME type reported at upload time.
	ContentType string `json:"content_type" db:"content_type"`

	// Size is the size of the stored object in bytes.
	Size int64 `json:"size" db:"size"`

	// CreatedAt is the timestamp at which the attachment was uploaded.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
