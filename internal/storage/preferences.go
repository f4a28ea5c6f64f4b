package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// PreferencesFile is the file name of the remembered UI state.
const PreferencesFile = ".riskdesk_prefs.yaml"

// MaxRecentProjects bounds Preferences.RecentProjects.
const MaxRecentProjects = 5

// PreferencesManager persists UI state between runs.
type PreferencesManager interface {
	Get() models.Preferences
	SelectProject(projectID string)
	SetFilter(search string, status models.DocumentStatus)
	Load() error
	Save() error
}

type filePreferencesManager struct {
	basePath string

	mu    sync.Mutex
	prefs models.Preferences
}

// NewPreferencesManager creates a PreferencesManager backed by a YAML file in
// basePath.
func NewPreferencesManager(basePath string) PreferencesManager {
	return &filePreferencesManager{basePath: basePath}
}

func (m *filePreferencesManager) filePath() string {
	return filepath.Join(m.basePath, PreferencesFile)
}

func (m *filePreferencesManager) Get() models.Preferences {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.prefs
	p.RecentProjects = append([]string(nil), m.prefs.RecentProjects...)
	return p
}

// SelectProject records projectID as the last selection and moves it to the
// front of the recent list.
func (m *filePreferencesManager) SelectProject(projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs.LastProjectID = projectID
	if projectID == "" {
		return
	}
	recent := []string{projectID}
	for _, id := range m.prefs.RecentProjects {
		if id != projectID && len(recent) < MaxRecentProjects {
			recent = append(recent, id)
		}
	}
	m.prefs.RecentProjects = recent
}

func (m *filePreferencesManager) SetFilter(search string, status models.DocumentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs.LastSearch = search
	m.prefs.LastStatus = status
}

// Load reads the file; a missing file leaves empty preferences.
func (m *filePreferencesManager) Load() error {
	data, err := os.ReadFile(m.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			m.mu.Lock()
			m.prefs = models.Preferences{}
			m.mu.Unlock()
			return nil
		}
		return fmt.Errorf("loading preferences: %w", err)
	}

	var p models.Preferences
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("loading preferences: parsing YAML: %w", err)
	}
	if p.LastStatus != "" && !p.LastStatus.Valid() {
		p.LastStatus = ""
	}
	m.mu.Lock()
	m.prefs = p
	m.mu.Unlock()
	return nil
}

func (m *filePreferencesManager) Save() error {
	if err := os.MkdirAll(m.basePath, 0o750); err != nil {
		return fmt.Errorf("saving preferences: creating directory: %w", err)
	}
	m.mu.Lock()
	data, err := yaml.Marshal(&m.prefs)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("saving preferences: marshaling YAML: %w", err)
	}
	if err := os.WriteFile(m.filePath(), data, 0o600); err != nil {
		return fmt.Errorf("saving preferences: writing file: %w", err)
	}
	return nil
}
