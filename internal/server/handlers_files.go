package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/jonathan/one-click-apply/internal/files"
	"github.com/jonathan/one-click-apply/internal/types"
)

// maxUploadBody bounds an upload request. The storage cap is enforced by files.
const maxUploadBody = 2 * files.MaxTotalStorageSize

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	state, err := s.Files.Load(r.Context())
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, state)
}

// handleUploadFile accepts a multipart form with a "category" field and a "file" part.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		s.errorResponse(w, fmt.Errorf("%w: invalid upload: %v", ErrBadRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	part, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, fmt.Errorf("%w: missing file: %v", ErrBadRequest, err))
		return
	}
	defer func() { _ = part.Close() }()

	content, err := io.ReadAll(part)
	if err != nil {
		s.errorResponse(w, fmt.Errorf("%w: read upload: %v", ErrBadRequest, err))
		return
	}

	stored, err := s.Files.Upload(r.Context(), files.Upload{
		Name:     header.Filename,
		Category: types.FileCategory(r.FormValue("category")),
		FileType: header.Header.Get("Content-Type"),
		Content:  content,
	})
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, stored)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	category := types.FileCategory(r.PathValue("category"))
	if err := s.Files.Remove(r.Context(), category, r.PathValue("id")); err != nil {
		s.errorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
