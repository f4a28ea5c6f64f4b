// Package present maps document and project enums to labels, colours and
// icons. Every function is total: unknown values get a neutral default.
package present

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// StatusStyle is how a document status is displayed.
type StatusStyle struct {
	Label      string
	BgClass    string
	TextClass  string
	Background lipgloss.Color
	Foreground lipgloss.Color
}

// Style returns the lipgloss style for the badge.
func (s StatusStyle) Style() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(s.Foreground).Background(s.Background).Padding(0, 1)
}

// Render draws the status badge.
func (s StatusStyle) Render() string {
	return s.Style().Render(s.Label)
}

// TypeStyle is how a document type is displayed.
type TypeStyle struct {
	Icon       string
	Color      lipgloss.Color
	Background lipgloss.Color
	Extension  string
}

// Render draws the type icon.
func (t TypeStyle) Render() string {
	return lipgloss.NewStyle().Foreground(t.Color).Render(t.Icon)
}

var statusStyles = map[models.DocumentStatus]StatusStyle{
	models.DocStatusUploading:     {"Uploading", "bg-blue-100", "text-blue-800", "17", "117"},
	models.DocStatusProcessing:    {"Processing", "bg-yellow-100", "text-yellow-800", "58", "226"},
	models.DocStatusProcessed:     {"Processed", "bg-indigo-100", "text-indigo-800", "54", "147"},
	models.DocStatusUploadingToKB: {"Uploading to KB", "bg-purple-100", "text-purple-800", "53", "183"},
	models.DocStatusParsingKB:     {"Parsing KB", "bg-cyan-100", "text-cyan-800", "23", "87"},
	models.DocStatusCompleted:     {"Completed", "bg-green-100", "text-green-800", "22", "46"},
	models.DocStatusFailed:        {"Failed", "bg-red-100", "text-red-800", "52", "196"},
	models.DocStatusKBParseFailed: {"KB Parse Failed", "bg-orange-100", "text-orange-800", "94", "214"},
}

var defaultStatusStyle = StatusStyle{"Unknown", "bg-gray-100", "text-gray-800", "236", "250"}

// Status maps a document status to its display style.
func Status(s models.DocumentStatus) StatusStyle {
	if st, ok := statusStyles[s]; ok {
		return st
	}
	st := defaultStatusStyle
	if s != "" {
		st.Label = string(s)
	}
	return st
}

var typeStyles = map[models.DocumentType]TypeStyle{
	models.DocumentTypePDF:      {"📕", "196", "52", ".pdf"},
	models.DocumentTypeExcel:    {"📗", "46", "22", ".xlsx"},
	models.DocumentTypeWord:     {"📘", "33", "17", ".docx"},
	models.DocumentTypeImage:    {"🖼", "213", "53", ".jpg"},
	models.DocumentTypeMarkdown: {"📝", "250", "236", ".md"},
	models.DocumentTypeText:     {"📄", "245", "236", ".txt"},
}

var defaultTypeStyle = TypeStyle{"📄", "245", "236", ""}

// Type maps a document type to its display style.
func Type(t models.DocumentType) TypeStyle {
	if st, ok := typeStyles[t]; ok {
		return st
	}
	return defaultTypeStyle
}

// Extension returns the file extension (with dot) for a document type, or ""
// when the type has none.
func Extension(t models.DocumentType) string {
	return Type(t).Extension
}

// TypeFromFileName infers a document type from a file name's extension.
func TypeFromFileName(name string) (models.DocumentType, bool) {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return "", false
	}
	switch strings.ToLower(name[i+1:]) {
	case "pdf":
		return models.DocumentTypePDF, true
	case "xls", "xlsx", "csv":
		return models.DocumentTypeExcel, true
	case "doc", "docx":
		return models.DocumentTypeWord, true
	case "jpg", "jpeg", "png", "gif", "webp":
		return models.DocumentTypeImage, true
	case "md", "markdown":
		return models.DocumentTypeMarkdown, true
	case "txt":
		return models.DocumentTypeText, true
	}
	return "", false
}

// ProjectStatusLabel returns the display label for a project status.
func ProjectStatusLabel(s models.ProjectStatus) string {
	switch s {
	case models.ProjectStatusCollecting:
		return "Collecting"
	case models.ProjectStatusProcessing:
		return "Processing"
	case models.ProjectStatusCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// ProjectTypeLabel returns the display label for a project type.
func ProjectTypeLabel(t models.ProjectType) string {
	switch t {
	case models.ProjectTypeEnterprise:
		return "Enterprise"
	case models.ProjectTypeIndividual:
		return "Individual"
	default:
		return "Unknown"
	}
}

// Progress renders a fixed-width text progress bar.
func Progress(pct, width int) string {
	if width <= 0 {
		width = 10
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	return fmt.Sprintf("%s%s %3d%%", strings.Repeat("█", filled), strings.Repeat("░", width-filled), pct)
}
