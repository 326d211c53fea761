package validation

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/checkpoint-edu/checkpoint/internal/model"
)

// FileConstraints defines validation rules for one kind of upload
type FileConstraints struct {
	Kind              string
	AllowedMimeTypes  map[string]bool
	AllowedExtensions map[string]bool
}

var (
	// ImageConstraints defines validation rules for image uploads
	ImageConstraints = FileConstraints{
		Kind: model.UploadKindImage,
		AllowedMimeTypes: map[string]bool{
			"image/jpeg": true,
			"image/png":  true,
			"image/gif":  true,
			"image/webp": true,
		},
		AllowedExtensions: map[string]bool{
			".jpg":  true,
			".jpeg": true,
			".png":  true,
			".gif":  true,
			".webp": true,
		},
	}

	// DocumentConstraints defines validation rules for document uploads
	DocumentConstraints = FileConstraints{
		Kind: model.UploadKindDocument,
		AllowedMimeTypes: map[string]bool{
			"application/pdf": true,
			"text/plain":      true,
		},
		AllowedExtensions: map[string]bool{
			".pdf": true,
			".txt": true,
		},
	}
)

// FileInfo is what validation learned about an accepted upload
type FileInfo struct {
	Kind     string
	MimeType string
}

// ValidateFile checks size, sniffed content type and extension. The file
// must match one of ImageConstraints or DocumentConstraints.
func ValidateFile(header *multipart.FileHeader, maxSize int64) (FileInfo, error) {
	if header == nil {
		return FileInfo{}, errors.New("file is required")
	}

	// Check file size first (before reading content)
	if header.Size > maxSize {
		maxMB := maxSize / (1 << 20)
		return FileInfo{}, fmt.Errorf("file too large: maximum size is %d MB", maxMB)
	}
	if header.Size == 0 {
		return FileInfo{}, errors.New("file is empty")
	}

	detectedType, err := detectContentType(header)
	if err != nil {
		return FileInfo{}, err
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))

	// The sniffed type picks the constraints; the extension must then agree
	for _, constraints := range []FileConstraints{ImageConstraints, DocumentConstraints} {
		if !constraints.AllowedMimeTypes[detectedType] {
			continue
		}
		if !constraints.AllowedExtensions[ext] {
			return FileInfo{}, fmt.Errorf("invalid file extension: %s", ext)
		}
		return FileInfo{Kind: constraints.Kind, MimeType: detectedType}, nil
	}

	return FileInfo{}, fmt.Errorf("invalid file type (detected: %s)", detectedType)
}

// detectContentType sniffs the first 512 bytes, which cannot be faked by
// changing the Content-Type header
func detectContentType(header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	// "text/plain; charset=utf-8" -> "text/plain"
	mediaType, _, err := mime.ParseMediaType(http.DetectContentType(buffer[:n]))
	if err != nil {
		return "", fmt.Errorf("failed to detect file type: %w", err)
	}
	return mediaType, nil
}
