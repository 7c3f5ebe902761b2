// Package types provides type definitions for structured data shared by the coordinator,
// its UI surfaces and the generation backend client.
//
//nolint:revive // types is a standard Go package name pattern
package types

// FileCategory distinguishes the single resume from supporting documents.
type FileCategory string

const (
	// CategoryResume is the applicant's resume; at most one is stored.
	CategoryResume FileCategory = "resume"
	// CategorySupporting is any other document (portfolio, transcript, ...).
	CategorySupporting FileCategory = "supporting"
)

// Valid reports whether c is a known category.
func (c FileCategory) Valid() bool {
	return c == CategoryResume || c == CategorySupporting
}

// StoredFile is an uploaded document kept in the shared store.
type StoredFile struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	FileCategory  FileCategory `json:"fileCategory"`
	FileType      string       `json:"fileType"` // MIME type, e.g. application/pdf
	Base64Content string       `json:"base64Content"`
	Base64Size    int64        `json:"base64Size"`
	UploadedAt    string       `json:"uploadedAt"` // YYYY-MM-DD
}

// FilesStorageState is the value stored under the file storage key.
type FilesStorageState struct {
	Resume         *StoredFile  `json:"resume"`
	SupportingDocs []StoredFile `json:"supportingDocs"`
}

// All returns every stored file, resume first.
func (s FilesStorageState) All() []StoredFile {
	out := make([]StoredFile, 0, len(s.SupportingDocs)+1)
	if s.Resume != nil {
		out = append(out, *s.Resume)
	}
	return append(out, s.SupportingDocs...)
}

// TotalBase64Size sums the encoded size of every stored file.
func (s FilesStorageState) TotalBase64Size() int64 {
	var total int64
	for _, f := range s.All() {
		total += f.Base64Size
	}
	return total
}

// UploadedDocument is the wire form of a stored file sent to the backend.
type UploadedDocument struct {
	Base64Content string `json:"base64_content"`
	FileType      string `json:"file_type"`
	Name          string `json:"name"`
}

// AsUploadedDocument converts a stored file to its backend representation.
func (f StoredFile) AsUploadedDocument() UploadedDocument {
	return UploadedDocument{
		Base64Content: f.Base64Content,
		FileType:      f.FileType,
		Name:          f.Name,
	}
}
