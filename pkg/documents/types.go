package documents

import "time"

// Document is one stored file's metadata row
type Document struct {
	ID            int64     `json:"id"`
	CaseID        *int64    `json:"case_id,omitempty"`
	InstitutionID *int64    `json:"institution_id,omitempty"`
	Bucket        string    `json:"bucket"`
	Key           string    `json:"key"`
	FileName      string    `json:"file_name"`
	ContentType   string    `json:"content_type,omitempty"`
	SizeBytes     int64     `json:"size_bytes"`
	UploadedBy    string    `json:"uploaded_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// UploadInput is the payload for the upload workflow
type UploadInput struct {
	CaseID        *int64
	InstitutionID *int64
	Bucket        string
	FileName      string
	ContentType   string
	Content       []byte
}

// SignedDownload is a time-boxed download link
type SignedDownload struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidationError reports a malformed or missing request field
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
