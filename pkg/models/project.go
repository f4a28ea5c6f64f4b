package models

// ProjectType distinguishes corporate and personal credit projects.
type ProjectType string

const (
	ProjectTypeEnterprise ProjectType = "enterprise"
	ProjectTypeIndividual ProjectType = "individual"
)

// ProjectStatus is the collection stage of a project.
type ProjectStatus string

const (
	ProjectStatusCollecting ProjectStatus = "collecting"
	ProjectStatusProcessing ProjectStatus = "processing"
	ProjectStatusCompleted  ProjectStatus = "completed"
)

// Project is owned by the backend; the client keeps a read-only copy.
type Project struct {
	ID        string        `json:"id" yaml:"id"`
	Name      string        `json:"name" yaml:"name"`
	Type      ProjectType   `json:"type" yaml:"type"`
	Status    ProjectStatus `json:"status" yaml:"status"`
	Documents int           `json:"documents" yaml:"documents"`
}

// NewProject holds the fields accepted when creating a project.
type NewProject struct {
	Name string      `json:"name"`
	Type ProjectType `json:"type"`
}

// Stats is the summary shown on the dashboard.
type Stats struct {
	TotalProjects       int    `json:"total_projects"`
	TotalDocuments      int    `json:"total_documents"`
	ProcessingDocuments int    `json:"processing_documents"`
	CompletedDocuments  int    `json:"completed_documents"`
	FailedDocuments     int    `json:"failed_documents"`
	StorageUsed         string `json:"storage_used"`
}
