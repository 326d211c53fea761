package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	cfg "github.com/checkpoint-edu/checkpoint/internal/config"
	"github.com/samber/lo"
)

var (
	ErrNotFound   = errors.New("file not found")
	ErrInvalidRef = errors.New("invalid file reference")
)

// Storage defines the interface for file storage operations.
// A ref is a slash-separated path relative to the storage root.
type Storage interface {
	// Save stores a file at ref, replacing any existing file
	Save(ctx context.Context, ref string, file io.Reader) error

	// Open returns ErrNotFound when nothing is stored at ref
	Open(ctx context.Context, ref string) (io.ReadCloser, error)

	// Delete reports false, not an error, when the file was already gone
	Delete(ctx context.Context, ref string) (bool, error)

	// DeleteBatch attempts every ref and never fails as a whole
	DeleteBatch(ctx context.Context, refs []string) BatchResult

	// List returns refs starting with prefix
	List(ctx context.Context, prefix string) ([]string, error)

	Exists(ctx context.Context, ref string) (bool, error)

	// URL returns a URL clients can fetch the file from
	URL(ref string) string
}

type FileError struct {
	Ref     string `json:"ref"`
	Message string `json:"message"`
}

// BatchResult counts absent files as failed without listing them in Errors.
type BatchResult struct {
	Deleted int         `json:"deleted"`
	Failed  int         `json:"failed"`
	Errors  []FileError `json:"errors,omitempty"`
}

// New creates the storage backend selected by STORAGE_DRIVER
func New(c *cfg.Config) (Storage, error) {
	switch c.StorageDriver {
	case "s3":
		return NewS3Storage(S3Config{
			Region:    c.S3Region,
			Bucket:    c.S3Bucket,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Endpoint:  c.S3Endpoint,
			PathStyle: c.S3PathStyle,
			Prefix:    c.S3Prefix,
		})
	case "local", "":
		return NewLocalStorage(c.UploadDir, "/uploads")
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
}

// deleteEach runs del for every ref. One failure never stops the rest.
func deleteEach(ctx context.Context, refs []string, del func(context.Context, string) (bool, error)) BatchResult {
	var result BatchResult
	for _, ref := range refs {
		deleted, err := del(ctx, ref)
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, FileError{Ref: ref, Message: err.Error()})
		case !deleted:
			result.Failed++
		default:
			result.Deleted++
		}
	}
	return result
}

var (
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9]`)
	nameSuffixChars = append(append([]rune{}, lo.NumbersCharset...), lo.LowerCaseLettersCharset...)
)

const maxBaseNameLength = 50

// SafeName builds a storage name of the form
// <epochMillis>_<random6>_<base><ext>. The base keeps only ASCII letters and
// digits and is cut to 50 characters; the extension is kept as is.
func SafeName(original string) string {
	name := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}

	ext := filepath.Ext(name)
	base := unsafeNameChars.ReplaceAllString(strings.TrimSuffix(name, ext), "")
	if len(base) > maxBaseNameLength {
		base = base[:maxBaseNameLength]
	}

	return fmt.Sprintf("%d_%s_%s%s", time.Now().UnixMilli(), lo.RandomString(6, nameSuffixChars), base, ext)
}
