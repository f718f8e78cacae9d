package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Report summarises one harvest cycle. It is saved as JSON next to the
// archive it describes.
type Report struct {
	// Identity
	Harvest string `json:"harvest"`
	Type    string `json:"type"`
	Seed    string `json:"seed"`

	// Window
	SinceID *int64 `json:"since_id,omitempty"`
	MaxID   *int64 `json:"max_id,omitempty"`

	// Counters
	Harvested int            `json:"harvested"`
	New       int            `json:"new"`
	ByType    map[string]int `json:"by_type"`
	Pages     int            `json:"pages"`

	// Timing
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Cancelled bool   `json:"cancelled,omitempty"`
	Error     string `json:"error,omitempty"`
	Archive   string `json:"archive,omitempty"`
}

// ReportPath returns where the report for an archive lives
func ReportPath(archivePath string) string {
	return archivePath + ".report.json"
}

// Save writes the report next to archivePath
func (r *Report) Save(archivePath string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(ReportPath(archivePath), data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	return nil
}

// LoadReport reads the report saved for archivePath
func LoadReport(archivePath string) (*Report, error) {
	data, err := os.ReadFile(ReportPath(archivePath))
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &r, nil
}

// Duration returns how long the cycle ran
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
