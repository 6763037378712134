package project

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/applydraft/pkg/models"
)

// Targets loads the project's accumulated target history.
func (s *Store) Targets(userID, project string) ([]models.Target, error) {
	var targets []models.Target
	path := filepath.Join(s.projectDir(userID, project), targetsFile)
	err := readJSON(path, &targets)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading targets for %s: %w", project, err)
	}
	return targets, nil
}

// AppendTargets adds targets to the history. History entries are immutable,
// so appends never modify existing records.
func (s *Store) AppendTargets(userID, project string, targets []models.Target) error {
	if len(targets) == 0 {
		return nil
	}
	existing, err := s.Targets(userID, project)
	if err != nil {
		return err
	}
	path := filepath.Join(s.projectDir(userID, project), targetsFile)
	return writeJSON(path, append(existing, targets...))
}

// AppendUsage records one billable operation in the project usage log.
func (s *Store) AppendUsage(userID, project string, record models.UsageRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	var records []models.UsageRecord
	path := filepath.Join(s.projectDir(userID, project), usageFile)
	if err := readJSON(path, &records); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading usage log for %s: %w", project, err)
	}
	return writeJSON(path, append(records, record))
}

// UsageTotals sums the project usage log per operation and overall.
func (s *Store) UsageTotals(userID, project string) (map[string]models.TokenUsage, models.TokenUsage, error) {
	var records []models.UsageRecord
	path := filepath.Join(s.projectDir(userID, project), usageFile)
	if err := readJSON(path, &records); err != nil && !os.IsNotExist(err) {
		return nil, models.TokenUsage{}, fmt.Errorf("loading usage log for %s: %w", project, err)
	}

	perOp := make(map[string]models.TokenUsage)
	var total models.TokenUsage
	for _, r := range records {
		agg := perOp[r.Operation]
		agg.Add(r.Usage)
		perOp[r.Operation] = agg
		total.Add(r.Usage)
	}
	return perOp, total, nil
}
