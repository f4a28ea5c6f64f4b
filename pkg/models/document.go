package models

// DocumentType is the file family a document belongs to.
type DocumentType string

const (
	DocumentTypePDF      DocumentType = "pdf"
	DocumentTypeExcel    DocumentType = "excel"
	DocumentTypeWord     DocumentType = "word"
	DocumentTypeImage    DocumentType = "image"
	DocumentTypeMarkdown DocumentType = "markdown"
	DocumentTypeText     DocumentType = "text"
)

// DocumentStatus is the processing state reported by the backend. The client
// only observes transitions; it never drives them.
type DocumentStatus string

const (
	DocStatusUploading     DocumentStatus = "uploading"
	DocStatusProcessing    DocumentStatus = "processing"
	DocStatusProcessed     DocumentStatus = "processed"
	DocStatusUploadingToKB DocumentStatus = "uploading_to_kb"
	DocStatusParsingKB     DocumentStatus = "parsing_kb"
	DocStatusCompleted     DocumentStatus = "completed"
	DocStatusFailed        DocumentStatus = "failed"
	DocStatusKBParseFailed DocumentStatus = "kb_parse_failed"
)

// AllDocumentStatuses lists every status in lifecycle order.
var AllDocumentStatuses = []DocumentStatus{
	DocStatusUploading,
	DocStatusProcessing,
	DocStatusProcessed,
	DocStatusUploadingToKB,
	DocStatusParsingKB,
	DocStatusCompleted,
	DocStatusFailed,
	DocStatusKBParseFailed,
}

// AllDocumentTypes lists every supported document type.
var AllDocumentTypes = []DocumentType{
	DocumentTypePDF,
	DocumentTypeExcel,
	DocumentTypeWord,
	DocumentTypeImage,
	DocumentTypeMarkdown,
	DocumentTypeText,
}

// IsTransient reports whether the backend is still working on the document.
// Lists containing transient documents are polled.
func (s DocumentStatus) IsTransient() bool {
	switch s {
	case DocStatusUploading, DocStatusProcessing, DocStatusUploadingToKB, DocStatusParsingKB:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transition is expected.
func (s DocumentStatus) IsTerminal() bool {
	switch s {
	case DocStatusCompleted, DocStatusFailed, DocStatusKBParseFailed:
		return true
	}
	return false
}

// IsFailed reports whether the status is one of the terminal failure states.
func (s DocumentStatus) IsFailed() bool {
	return s == DocStatusFailed || s == DocStatusKBParseFailed
}

// Valid reports whether s is a known status.
func (s DocumentStatus) Valid() bool {
	for _, v := range AllDocumentStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	for _, v := range AllDocumentTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Document is a file uploaded to a project, as listed by the backend.
type Document struct {
	ID         int            `json:"id" yaml:"id"`
	Name       string         `json:"name" yaml:"name"`
	Project    string         `json:"project" yaml:"project"`
	ProjectID  string         `json:"project_id" yaml:"project_id"`
	Type       DocumentType   `json:"type" yaml:"type"`
	Size       string         `json:"size" yaml:"size"`
	Status     DocumentStatus `json:"status" yaml:"status"`
	UploadTime string         `json:"uploadTime" yaml:"upload_time"`
	Progress   int            `json:"progress" yaml:"progress"`
	Label      string         `json:"label,omitempty" yaml:"label,omitempty"`
}

// DocumentFilter narrows a document list query. Empty fields are ignored.
type DocumentFilter struct {
	Search    string         `json:"search,omitempty"`
	Status    DocumentStatus `json:"status,omitempty"`
	ProjectID string         `json:"project_id,omitempty"`
}

// HasTransient reports whether any document in docs is in a transient state.
func HasTransient(docs []Document) bool {
	for _, d := range docs {
		if d.Status.IsTransient() {
			return true
		}
	}
	return false
}
