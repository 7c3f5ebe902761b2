package files

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/one-click-apply/internal/store"
	"github.com/jonathan/one-click-apply/internal/types"
)

const mib = 1024 * 1024

func newManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(store.NewMemory())
	m.now = func() time.Time { return time.Date(2025, 3, 7, 15, 4, 5, 0, time.UTC) }
	return m
}

func pdf(size int) []byte {
	content := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("a"), size)...)
	return content[:size]
}

func TestBase64Size(t *testing.T) {
	assert.Equal(t, int64(0), Base64Size(0))
	assert.Equal(t, int64(2), Base64Size(1))
	assert.Equal(t, int64(3), Base64Size(2))
	assert.Equal(t, int64(4), Base64Size(3))
	assert.Equal(t, int64(4*mib), Base64Size(3*mib))
}

func TestUpload_Resume(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	file, err := m.Upload(ctx, Upload{Name: "resume.pdf", Category: types.CategoryResume, FileType: "application/pdf", Content: pdf(2 * mib)})
	require.NoError(t, err)
	assert.NotEmpty(t, file.ID)
	assert.Equal(t, "2025-03-07", file.UploadedAt)
	assert.Equal(t, Base64Size(2*mib), file.Base64Size)

	state, err := m.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, state.Resume)
	assert.Equal(t, file.ID, state.Resume.ID)
	assert.Empty(t, state.SupportingDocs)
}

func TestUpload_ResumeReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	_, err := m.Upload(ctx, Upload{Name: "old.pdf", Category: types.CategoryResume, Content: pdf(3 * mib)})
	require.NoError(t, err)
	// The old resume's size does not count against the cap when replacing it.
	second, err := m.Upload(ctx, Upload{Name: "new.pdf", Category: types.CategoryResume, Content: pdf(3 * mib)})
	require.NoError(t, err)

	state, err := m.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, state.Resume)
	assert.Equal(t, second.ID, state.Resume.ID)
	assert.Equal(t, "new.pdf", state.Resume.Name)
	assert.Len(t, state.All(), 1)
}

func TestUpload_FifthSupportingDocRejected(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	for i := 0; i < MaxSupportingDocs; i++ {
		_, err := m.Upload(ctx, Upload{Name: "doc.txt", Category: types.CategorySupporting, Content: []byte("portfolio notes")})
		require.NoError(t, err)
	}
	before, err := m.Load(ctx)
	require.NoError(t, err)

	_, err = m.Upload(ctx, Upload{Name: "fifth.txt", Category: types.CategorySupporting, Content: []byte("one too many")})
	require.ErrorIs(t, err, ErrTooManySupportingDocs)

	after, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpload_StorageCap(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	_, err := m.Upload(ctx, Upload{Name: "resume.pdf", Category: types.CategoryResume, Content: pdf(3 * mib)})
	require.NoError(t, err)
	// Exactly fills the cap.
	_, err = m.Upload(ctx, Upload{Name: "a.pdf", Category: types.CategorySupporting, Content: pdf(768 * 1024)})
	require.NoError(t, err)

	before, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(MaxTotalStorageSize), before.TotalBase64Size())

	_, err = m.Upload(ctx, Upload{Name: "b.txt", Category: types.CategorySupporting, Content: []byte("x")})
	require.ErrorIs(t, err, ErrStorageCapExceeded)

	after, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.LessOrEqual(t, after.TotalBase64Size(), int64(MaxTotalStorageSize))
}

func TestUpload_FileTypes(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		declared string
		content  []byte
		want     string
		wantErr  error
	}{
		{name: "declared pdf", declared: "application/pdf", content: pdf(100), want: "application/pdf"},
		{name: "declared text with charset", declared: "text/plain; charset=utf-8", content: []byte("hi"), want: "text/plain"},
		{name: "declared docx", declared: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", content: []byte("PK"), want: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{name: "detected pdf", content: pdf(100), want: "application/pdf"},
		{name: "detected text", content: []byte("Senior Go engineer, 8 years"), want: "text/plain"},
		{name: "declared image", declared: "image/png", content: []byte("png"), wantErr: ErrInvalidFileType},
		{name: "detected image", content: []byte("\x89PNG\r\n\x1a\n0000"), wantErr: ErrInvalidFileType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t)
			file, err := m.Upload(ctx, Upload{Name: "f", Category: types.CategorySupporting, FileType: tt.declared, Content: tt.content})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				state, loadErr := m.Load(ctx)
				require.NoError(t, loadErr)
				assert.Empty(t, state.SupportingDocs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, file.FileType)
		})
	}
}

func TestUpload_InvalidInput(t *testing.T) {
	m := newManager(t)
	_, err := m.Upload(context.Background(), Upload{Name: "x", Category: "photo", Content: []byte("x")})
	assert.ErrorIs(t, err, ErrInvalidCategory)

	_, err = m.Upload(context.Background(), Upload{Name: "x", Category: types.CategoryResume})
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	resume, err := m.Upload(ctx, Upload{Name: "r.txt", Category: types.CategoryResume, Content: []byte("resume")})
	require.NoError(t, err)
	a, err := m.Upload(ctx, Upload{Name: "a.txt", Category: types.CategorySupporting, Content: []byte("a")})
	require.NoError(t, err)
	b, err := m.Upload(ctx, Upload{Name: "b.txt", Category: types.CategorySupporting, Content: []byte("b")})
	require.NoError(t, err)

	require.NoError(t, m.Remove(ctx, types.CategorySupporting, a.ID))
	assert.ErrorIs(t, m.Remove(ctx, types.CategorySupporting, a.ID), ErrFileNotFound)

	state, err := m.Load(ctx)
	require.NoError(t, err)
	require.Len(t, state.SupportingDocs, 1)
	assert.Equal(t, b.ID, state.SupportingDocs[0].ID)

	assert.ErrorIs(t, m.Remove(ctx, types.CategoryResume, "other"), ErrFileNotFound)
	require.NoError(t, m.Remove(ctx, types.CategoryResume, resume.ID))

	got, err := m.Resume(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpload_CountCheckedBeforeCap(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	// Four documents fill the cap exactly.
	for i := 0; i < MaxSupportingDocs; i++ {
		_, err := m.Upload(ctx, Upload{Name: "doc.pdf", Category: types.CategorySupporting, Content: pdf(960 * 1024)})
		require.NoError(t, err)
	}
	state, err := m.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(MaxTotalStorageSize), state.TotalBase64Size())

	_, err = m.Upload(ctx, Upload{Name: "fifth.txt", Category: types.CategorySupporting, Content: []byte("x")})
	require.ErrorIs(t, err, ErrTooManySupportingDocs)
}
