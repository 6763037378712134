package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/applydraft/internal/template"
)

// Template loads a document type's template body and slot definitions.
func (s *Store) Template(userID, project, typeID string) (*template.Template, error) {
	dir := filepath.Join(s.projectDir(userID, project), templatesDir, sanitizeName(typeID))

	body, err := os.ReadFile(filepath.Join(dir, templateFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("no template stored for document type %s", typeID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading template for %s: %w", typeID, err)
	}

	defsText, err := os.ReadFile(filepath.Join(dir, definitionsFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading definitions for %s: %w", typeID, err)
	}

	return &template.Template{
		Body:        string(body),
		Definitions: template.ParseDefinitions(string(defsText)),
	}, nil
}

// SaveTemplate persists a template body and its definitions. Definitions are
// stored in the editable text format, so loading parses them back.
func (s *Store) SaveTemplate(userID, project, typeID string, tmpl *template.Template) error {
	dir := filepath.Join(s.projectDir(userID, project), templatesDir, sanitizeName(typeID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating template directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, templateFile), []byte(tmpl.Body), 0o644); err != nil {
		return fmt.Errorf("writing template for %s: %w", typeID, err)
	}
	defsText := template.FormatDefinitions(tmpl.Definitions)
	if err := os.WriteFile(filepath.Join(dir, definitionsFile), []byte(defsText), 0o644); err != nil {
		return fmt.Errorf("writing definitions for %s: %w", typeID, err)
	}
	return nil
}

// HasTemplate reports whether a template body is stored for the type.
func (s *Store) HasTemplate(userID, project, typeID string) bool {
	path := filepath.Join(s.projectDir(userID, project), templatesDir, sanitizeName(typeID), templateFile)
	_, err := os.Stat(path)
	return err == nil
}

// CombinedDefinitions concatenates the definitions text of every document
// type that has one, for use in search prompts.
func (s *Store) CombinedDefinitions(userID, project string, typeIDs []string) string {
	var parts []string
	for _, id := range typeIDs {
		path := filepath.Join(s.projectDir(userID, project), templatesDir, sanitizeName(id), definitionsFile)
		data, err := os.ReadFile(path)
		if err != nil || len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		parts = append(parts, strings.TrimSpace(string(data)))
	}
	return strings.Join(parts, "\n\n")
}

// Examples lists a document type's example letters, sorted by filename.
func (s *Store) Examples(userID, project, typeID string) ([]string, error) {
	dir := filepath.Join(s.projectDir(userID, project), templatesDir, sanitizeName(typeID), examplesDir)
	names, err := s.ExampleNames(userID, project, typeID)
	if err != nil || len(names) == 0 {
		return nil, err
	}

	var contents []string
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading example %s: %w", name, err)
		}
		contents = append(contents, string(data))
	}
	return contents, nil
}

// ExampleNames lists the stored example filenames, sorted.
func (s *Store) ExampleNames(userID, project, typeID string) ([]string, error) {
	dir := filepath.Join(s.projectDir(userID, project), templatesDir, sanitizeName(typeID), examplesDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing examples for %s: %w", typeID, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// AddExample stores one example letter for a document type.
func (s *Store) AddExample(userID, project, typeID, filename, content string) error {
	dir := filepath.Join(s.projectDir(userID, project), templatesDir, sanitizeName(typeID), examplesDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating examples directory: %w", err)
	}
	name := sanitizeName(filename)
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing example %s: %w", name, err)
	}
	return nil
}

// RemoveExample deletes one stored example by filename.
func (s *Store) RemoveExample(userID, project, typeID, filename string) error {
	path := filepath.Join(s.projectDir(userID, project), templatesDir, sanitizeName(typeID), examplesDir, sanitizeName(filename))
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("example %s not found", filename)
		}
		return fmt.Errorf("removing example %s: %w", filename, err)
	}
	return nil
}
