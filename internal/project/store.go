// Package project persists per-project state on the filesystem: config,
// templates and definitions, example letters, target history, the delivery
// tracker, and the usage log. The on-disk layout is plain files so users can
// inspect and edit everything with ordinary tools.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/applydraft/internal/fill"
	"github.com/applydraft/pkg/models"
)

const (
	configFile       = "config.json"
	targetsFile      = "targets.json"
	trackerFile      = "tracker.csv"
	instructionsFile = "instructions.txt"
	usageFile        = "usage_log.json"

	templatesDir = "templates"
	examplesDir  = "examples"
	materialsDir = "materials"
	outputDir    = "output"

	templateFile    = "template.txt"
	definitionsFile = "definitions.txt"
)

// DefaultDocumentTypes seeds every new project.
var DefaultDocumentTypes = []models.DocumentType{
	{ID: "cover_letter", Label: "Cover Letter", IsAttachment: true},
	{ID: models.EmailBodyTypeID, Label: "Email Body", IsAttachment: false},
}

// Store manages all projects for all users under one root directory.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) userDir(userID string) string {
	return filepath.Join(s.root, sanitizeName(userID))
}

func (s *Store) projectDir(userID, project string) string {
	return filepath.Join(s.userDir(userID), sanitizeName(project))
}

// sanitizeName makes a string safe as a directory name.
func sanitizeName(name string) string {
	name = strings.TrimSpace(fill.SafeFilename(name))
	name = strings.Trim(name, ". ")
	if name == "" {
		name = "unnamed"
	}
	return name
}

// Create makes a new project directory seeded with default document types,
// an empty target history, and a tracker containing only the header. When a
// project of the same name exists, a numeric suffix is appended.
func (s *Store) Create(userID string, cfg models.ProjectConfig) (models.ProjectConfig, error) {
	base := sanitizeName(cfg.ProjectName)
	name := base
	for i := 2; ; i++ {
		if _, err := os.Stat(filepath.Join(s.userDir(userID), name)); os.IsNotExist(err) {
			break
		}
		name = fmt.Sprintf("%s-%d", base, i)
	}
	cfg.ProjectName = name
	if len(cfg.DocumentTypes) == 0 {
		cfg.DocumentTypes = append([]models.DocumentType(nil), DefaultDocumentTypes...)
	}

	dir := s.projectDir(userID, name)
	for _, sub := range []string{templatesDir, materialsDir, outputDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return cfg, fmt.Errorf("creating project %s: %w", name, err)
		}
	}
	if err := s.SaveConfig(userID, name, cfg); err != nil {
		return cfg, err
	}
	if err := writeJSON(filepath.Join(dir, targetsFile), []models.Target{}); err != nil {
		return cfg, err
	}
	if err := seedTracker(filepath.Join(dir, trackerFile)); err != nil {
		return cfg, err
	}
	if err := os.WriteFile(filepath.Join(dir, instructionsFile), nil, 0o644); err != nil {
		return cfg, fmt.Errorf("seeding instructions: %w", err)
	}

	log.Info().Str("user_id", userID).Str("project", name).Msg("project created")
	return cfg, nil
}

// List returns the user's project names, sorted.
func (s *Store) List(userID string) ([]string, error) {
	entries, err := os.ReadDir(s.userDir(userID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether the project directory is present.
func (s *Store) Exists(userID, project string) bool {
	info, err := os.Stat(s.projectDir(userID, project))
	return err == nil && info.IsDir()
}

// Delete removes a project and everything under it.
func (s *Store) Delete(userID, project string) error {
	dir := s.projectDir(userID, project)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("project %s not found", project)
	}
	return os.RemoveAll(dir)
}

// Config loads the project configuration.
func (s *Store) Config(userID, project string) (models.ProjectConfig, error) {
	var cfg models.ProjectConfig
	err := readJSON(filepath.Join(s.projectDir(userID, project), configFile), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("loading config for %s: %w", project, err)
	}
	if len(cfg.DocumentTypes) == 0 {
		cfg.DocumentTypes = append([]models.DocumentType(nil), DefaultDocumentTypes...)
	}
	return cfg, nil
}

// SaveConfig writes the project configuration.
func (s *Store) SaveConfig(userID, project string, cfg models.ProjectConfig) error {
	return writeJSON(filepath.Join(s.projectDir(userID, project), configFile), cfg)
}

// AddDocumentType appends a document type to the project config.
func (s *Store) AddDocumentType(userID, project string, dt models.DocumentType) error {
	cfg, err := s.Config(userID, project)
	if err != nil {
		return err
	}
	for _, existing := range cfg.DocumentTypes {
		if existing.ID == dt.ID {
			return fmt.Errorf("document type %s already exists", dt.ID)
		}
	}
	cfg.DocumentTypes = append(cfg.DocumentTypes, dt)
	return s.SaveConfig(userID, project, cfg)
}

// RemoveDocumentType drops a document type and its stored template. The
// email body type cannot be removed.
func (s *Store) RemoveDocumentType(userID, project, typeID string) error {
	if typeID == models.EmailBodyTypeID {
		return fmt.Errorf("the email body document type cannot be removed")
	}
	cfg, err := s.Config(userID, project)
	if err != nil {
		return err
	}
	kept := cfg.DocumentTypes[:0]
	found := false
	for _, dt := range cfg.DocumentTypes {
		if dt.ID == typeID {
			found = true
			continue
		}
		kept = append(kept, dt)
	}
	if !found {
		return fmt.Errorf("document type %s not found", typeID)
	}
	cfg.DocumentTypes = kept
	if err := s.SaveConfig(userID, project, cfg); err != nil {
		return err
	}
	os.RemoveAll(filepath.Join(s.projectDir(userID, project), templatesDir, sanitizeName(typeID)))
	return nil
}

// OutputDir returns the directory the project's rendered documents go to,
// creating it when missing.
func (s *Store) OutputDir(userID, project string) (string, error) {
	dir := filepath.Join(s.projectDir(userID, project), outputDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	return dir, nil
}

// Instructions loads the project's search instructions.
func (s *Store) Instructions(userID, project string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.projectDir(userID, project), instructionsFile))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading instructions: %w", err)
	}
	return string(data), nil
}

// SaveInstructions overwrites the project's search instructions.
func (s *Store) SaveInstructions(userID, project, text string) error {
	path := filepath.Join(s.projectDir(userID, project), instructionsFile)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("saving instructions: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
