package files

import "time"

// FileRecord is one blob's metadata.
type FileRecord struct {
	ID         string
	Name       string
	OwnerID    string
	ParentID   *string
	Size       int64
	MimeType   string
	StorageKey string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	IsDeleted  bool
	IsFavorite bool
}

// FilePatch is an edit to a stored record. Nil fields keep their stored
// value, so concurrent edits of different fields do not overwrite each other.
type FilePatch struct {
	Name       *string
	IsDeleted  *bool
	IsFavorite *bool
	// OnlyLive fails the edit with ErrNotFound if the record is soft-deleted
	// when the write happens.
	OnlyLive  bool
	UpdatedAt time.Time
}

// ListFilter selects an owner's files. A nil ParentID matches any folder.
type ListFilter struct {
	OwnerID        string
	ParentID       *string
	FavoritesOnly  bool
	IncludeDeleted bool
	Limit          int
	Offset         int
}

const (
	DispositionInline     = "inline"
	DispositionAttachment = "attachment"
)
