package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// AddMaterial stores one supporting document (resume, certificates) that is
// attached to every mail draft the project generates.
func (s *Store) AddMaterial(userID, project, filename string, content []byte) error {
	dir := filepath.Join(s.projectDir(userID, project), materialsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating materials directory: %w", err)
	}
	name := sanitizeName(filename)
	if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
		return fmt.Errorf("writing material %s: %w", name, err)
	}
	return nil
}

// MaterialNames lists the stored material filenames, sorted.
func (s *Store) MaterialNames(userID, project string) ([]string, error) {
	dir := filepath.Join(s.projectDir(userID, project), materialsDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing materials: %w", err)
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

// MaterialPaths returns the full paths of the stored materials, sorted by
// filename, ready to hand to the mail layer as attachments.
func (s *Store) MaterialPaths(userID, project string) ([]string, error) {
	names, err := s.MaterialNames(userID, project)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(s.projectDir(userID, project), materialsDir)
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// RemoveMaterial deletes one stored material by filename.
func (s *Store) RemoveMaterial(userID, project, filename string) error {
	path := filepath.Join(s.projectDir(userID, project), materialsDir, sanitizeName(filename))
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("material %s not found", filename)
		}
		return fmt.Errorf("removing material %s: %w", filename, err)
	}
	return nil
}
