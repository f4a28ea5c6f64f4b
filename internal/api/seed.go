package api

import (
	"fmt"
	"os"

	"github.com/valter-silva-au/riskdesk/pkg/models"
	"gopkg.in/yaml.v3"
)

// Seed is the initial content of a MockBackend.
type Seed struct {
	Projects  []models.Project  `yaml:"projects"`
	Documents []models.Document `yaml:"documents"`
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("reading seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	for _, d := range seed.Documents {
		if d.ID <= 0 {
			return Seed{}, fmt.Errorf("seed document %q has invalid id %d", d.Name, d.ID)
		}
	}
	return seed, nil
}

// DefaultSeed is the demo data used when no seed file is configured.
func DefaultSeed() Seed {
	return Seed{
		Projects: []models.Project{
			{ID: "1", Name: "Acme Manufacturing Credit Review", Type: models.ProjectTypeEnterprise, Status: models.ProjectStatusCollecting},
			{ID: "2", Name: "Northwind Trading Line Renewal", Type: models.ProjectTypeEnterprise, Status: models.ProjectStatusProcessing},
			{ID: "3", Name: "J. Doe Personal Loan", Type: models.ProjectTypeIndividual, Status: models.ProjectStatusCompleted},
		},
		Documents: []models.Document{
			{ID: 1, Name: "2024 Annual Report.pdf", Project: "Acme Manufacturing Credit Review", ProjectID: "1", Type: models.DocumentTypePDF, Size: "2.4 MB", Status: models.DocStatusCompleted, UploadTime: "2025-01-15 10:30", Progress: 100},
			{ID: 2, Name: "Balance Sheet Q4.xlsx", Project: "Acme Manufacturing Credit Review", ProjectID: "1", Type: models.DocumentTypeExcel, Size: "856 kB", Status: models.DocStatusProcessing, UploadTime: "2025-01-15 11:02", Progress: 0},
			{ID: 3, Name: "Board Resolution", Project: "Acme Manufacturing Credit Review", ProjectID: "1", Type: models.DocumentTypeWord, Size: "120 kB", Status: models.DocStatusProcessed, UploadTime: "2025-01-15 11:40", Progress: 100},
			{ID: 4, Name: "Site Photo.jpg", Project: "Acme Manufacturing Credit Review", ProjectID: "1", Type: models.DocumentTypeImage, Size: "3.1 MB", Status: models.DocStatusFailed, UploadTime: "2025-01-16 09:12", Progress: 0},
			{ID: 5, Name: "Trade Ledger.xlsx", Project: "Northwind Trading Line Renewal", ProjectID: "2", Type: models.DocumentTypeExcel, Size: "1.2 MB", Status: models.DocStatusKBParseFailed, UploadTime: "2025-01-17 14:55", Progress: 100},
			{ID: 6, Name: "Credit Memo.md", Project: "Northwind Trading Line Renewal", ProjectID: "2", Type: models.DocumentTypeMarkdown, Size: "14 kB", Status: models.DocStatusParsingKB, UploadTime: "2025-01-17 15:20", Progress: 50},
			{ID: 7, Name: "Income Statement.pdf", Project: "J. Doe Personal Loan", ProjectID: "3", Type: models.DocumentTypePDF, Size: "640 kB", Status: models.DocStatusCompleted, UploadTime: "2025-01-18 08:45", Progress: 100},
		},
	}
}
