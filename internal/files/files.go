// Package files manages the documents the applicant uploads: one resume and a
// bounded list of supporting documents, all kept in the shared store.
package files

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/jonathan/one-click-apply/internal/store"
	"github.com/jonathan/one-click-apply/internal/types"
)

const (
	// MaxTotalStorageSize caps the summed base64 size of all stored files.
	MaxTotalStorageSize = 5 * 1024 * 1024
	// MaxSupportingDocs is the number of supporting documents kept next to the resume.
	MaxSupportingDocs = 4
)

// AllowedFileTypes lists the accepted MIME types.
var AllowedFileTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
}

var (
	ErrInvalidFileType       = errors.New("invalid file type, please upload PDF, DOCX, or TXT files only")
	ErrStorageCapExceeded    = errors.New("total allowed file storage exceeded, please remove some files before uploading new ones")
	ErrTooManySupportingDocs = errors.New("maximum number of supporting documents reached")
	ErrInvalidCategory       = errors.New("invalid file category")
	ErrEmptyFile             = errors.New("file is empty")
	ErrFileNotFound          = errors.New("file not found")
)

// Upload is a document submitted by a UI surface.
type Upload struct {
	Name     string
	Category types.FileCategory
	// FileType is the declared MIME type; when empty it is detected from Content.
	FileType string
	Content  []byte
}

// Manager validates and persists uploaded files.
type Manager struct {
	store store.Store
	mu    sync.Mutex
	now   func() time.Time
}

// NewManager returns a Manager over s.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s, now: time.Now}
}

// Load returns the current file storage state.
func (m *Manager) Load(ctx context.Context) (types.FilesStorageState, error) {
	var state types.FilesStorageState
	if _, err := store.Load(ctx, m.store, store.KeyFileStorage, &state); err != nil {
		return types.FilesStorageState{}, fmt.Errorf("failed to load saved files: %w", err)
	}
	if state.SupportingDocs == nil {
		state.SupportingDocs = []types.StoredFile{}
	}
	return state, nil
}

// Resume returns the stored resume, or nil when none was uploaded.
func (m *Manager) Resume(ctx context.Context) (*types.StoredFile, error) {
	state, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}
	return state.Resume, nil
}

// Upload validates u and stores it. A resume replaces the previous one; a
// supporting document is appended. Nothing is written when validation fails.
func (m *Manager) Upload(ctx context.Context, u Upload) (types.StoredFile, error) {
	if !u.Category.Valid() {
		return types.StoredFile{}, ErrInvalidCategory
	}
	if len(u.Content) == 0 {
		return types.StoredFile{}, ErrEmptyFile
	}
	fileType, err := resolveFileType(u.FileType, u.Content)
	if err != nil {
		return types.StoredFile{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.Load(ctx)
	if err != nil {
		return types.StoredFile{}, err
	}

	size := Base64Size(len(u.Content))
	current := state.TotalBase64Size()
	if u.Category == types.CategoryResume && state.Resume != nil {
		current -= state.Resume.Base64Size
	}
	if u.Category == types.CategorySupporting && len(state.SupportingDocs) >= MaxSupportingDocs {
		return types.StoredFile{}, ErrTooManySupportingDocs
	}
	if current+size > MaxTotalStorageSize {
		return types.StoredFile{}, ErrStorageCapExceeded
	}

	file := types.StoredFile{
		ID:            uuid.NewString(),
		Name:          u.Name,
		FileCategory:  u.Category,
		FileType:      fileType,
		Base64Content: base64.StdEncoding.EncodeToString(u.Content),
		Base64Size:    size,
		UploadedAt:    m.now().Format(time.DateOnly),
	}
	if u.Category == types.CategoryResume {
		state.Resume = &file
	} else {
		state.SupportingDocs = append(state.SupportingDocs, file)
	}

	if err := m.store.Set(ctx, map[string]any{store.KeyFileStorage: state}); err != nil {
		return types.StoredFile{}, fmt.Errorf("failed to upload file: %w", err)
	}
	return file, nil
}

// Remove deletes the file with the given id from category.
func (m *Manager) Remove(ctx context.Context, category types.FileCategory, id string) error {
	if !category.Valid() {
		return ErrInvalidCategory
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.Load(ctx)
	if err != nil {
		return err
	}

	switch category {
	case types.CategoryResume:
		if state.Resume == nil || (id != "" && state.Resume.ID != id) {
			return ErrFileNotFound
		}
		state.Resume = nil
	case types.CategorySupporting:
		kept := make([]types.StoredFile, 0, len(state.SupportingDocs))
		for _, doc := range state.SupportingDocs {
			if doc.ID != id {
				kept = append(kept, doc)
			}
		}
		if len(kept) == len(state.SupportingDocs) {
			return ErrFileNotFound
		}
		state.SupportingDocs = kept
	}

	if err := m.store.Set(ctx, map[string]any{store.KeyFileStorage: state}); err != nil {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// Base64Size is the encoded size of n raw bytes, rounded up.
func Base64Size(n int) int64 {
	return (int64(n)*4 + 2) / 3
}

// resolveFileType returns the allowed MIME type of a file, preferring the declared type.
func resolveFileType(declared string, content []byte) (string, error) {
	if declared != "" && declared != "application/octet-stream" {
		mediaType, _, err := mime.ParseMediaType(declared)
		if err != nil {
			return "", ErrInvalidFileType
		}
		mediaType = strings.ToLower(mediaType)
		for _, allowed := range AllowedFileTypes {
			if mediaType == allowed {
				return allowed, nil
			}
		}
		return "", ErrInvalidFileType
	}

	detected := mimetype.Detect(content)
	for _, allowed := range AllowedFileTypes {
		if detected.Is(allowed) {
			return allowed, nil
		}
	}
	return "", ErrInvalidFileType
}
