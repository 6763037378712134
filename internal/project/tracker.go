package project

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/applydraft/pkg/models"
)

// trackerHeader is the fixed tracker column order. Existing tracker files
// are never rewritten, so the order must stay stable.
var trackerHeader = []string{"Firm", "Location", "Position", "OpenDate", "AppliedDate", "Email", "Source", "Status"}

func seedTracker(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating tracker: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(trackerHeader); err != nil {
		return fmt.Errorf("writing tracker header: %w", err)
	}
	w.Flush()
	return w.Error()
}

// AppendTrackerRows appends delivery rows to the project tracker, creating
// the file with its header first when missing. Rows are never updated or
// removed.
func (s *Store) AppendTrackerRows(userID, project string, rows []models.TrackerRow) error {
	if len(rows) == 0 {
		return nil
	}
	path := filepath.Join(s.projectDir(userID, project), trackerFile)
	if err := seedTracker(path); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening tracker: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, r := range rows {
		record := []string{r.Firm, r.Location, r.Position, r.OpenDate, r.AppliedDate, r.Email, r.Source, r.Status}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("appending tracker row for %s: %w", r.Firm, err)
		}
	}
	w.Flush()
	return w.Error()
}

// TrackerRows reads all tracker entries in file order.
func (s *Store) TrackerRows(userID, project string) ([]models.TrackerRow, error) {
	path := filepath.Join(s.projectDir(userID, project), trackerFile)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening tracker: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(trackerHeader)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading tracker: %w", err)
	}

	var rows []models.TrackerRow
	for i, rec := range records {
		if i == 0 && rec[0] == trackerHeader[0] {
			continue
		}
		rows = append(rows, models.TrackerRow{
			Firm: rec[0], Location: rec[1], Position: rec[2], OpenDate: rec[3],
			AppliedDate: rec[4], Email: rec[5], Source: rec[6], Status: rec[7],
		})
	}
	return rows, nil
}

// TrackedFirms returns the firms already present in the tracker, used to
// build search exclusion lists.
func (s *Store) TrackedFirms(userID, project string) ([]string, error) {
	rows, err := s.TrackerRows(userID, project)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(rows))
	var firms []string
	for _, r := range rows {
		key := strings.ToLower(strings.TrimSpace(r.Firm))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		firms = append(firms, r.Firm)
	}
	return firms, nil
}
