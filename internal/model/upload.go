package model

import (
	"time"
)

const (
	UploadKindImage    = "image"
	UploadKindDocument = "document"
)

// Upload tracks a stored file owned by a user. Filename is the storage ref.
type Upload struct {
	ID           string    `db:"id"`
	UserUUID     string    `db:"user_uuid"`
	Filename     string    `db:"filename"`
	OriginalName string    `db:"original_name"`
	MimeType     string    `db:"mime_type"`
	Kind         string    `db:"kind"`
	Size         int64     `db:"size"`
	CreatedAt    time.Time `db:"created_at"`
}
