package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Prompt is one editable analysis prompt. Domain experts tune the templates
// without a redeploy, so the store validates that every required variable
// survives an edit.
type Prompt struct {
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Template          string    `json:"template"`
	RequiredVariables []string  `json:"required_variables"`
	LastModified      time.Time `json:"last_modified"`
	ModifiedBy        string    `json:"modified_by"`
}

// BackupInfo describes one saved prompt-file backup.
type BackupInfo struct {
	Filename string    `json:"filename"`
	Created  time.Time `json:"created"`
	Size     int64     `json:"size"`
}

const maxPromptBackups = 10

// PromptStore manages the prompt templates in a JSON file, with timestamped
// backups taken before every modification.
type PromptStore struct {
	path      string
	backupDir string

	mu      sync.RWMutex
	prompts map[string]Prompt
}

// NewPromptStore opens (or seeds with defaults) the prompt file at path.
func NewPromptStore(path, backupDir string) (*PromptStore, error) {
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %v", err)
	}

	s := &PromptStore{path: path, backupDir: backupDir}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		s.prompts = defaultPrompts()
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Template returns the raw template for a prompt id.
func (s *PromptStore) Template(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[id]
	return p.Template, ok
}

// Info returns the full prompt entry for id.
func (s *PromptStore) Info(id string) (Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[id]
	return p, ok
}

// All returns a copy of every prompt keyed by id.
func (s *PromptStore) All() map[string]Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Prompt, len(s.prompts))
	for id, p := range s.prompts {
		out[id] = p
	}
	return out
}

// Validate checks a candidate template against the prompt's required
// variables and returns the list of problems (empty means valid).
func (s *PromptStore) Validate(id, template string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prompts[id]
	if !ok {
		return []string{fmt.Sprintf("unknown prompt id: %s", id)}
	}

	var problems []string
	if strings.TrimSpace(template) == "" {
		problems = append(problems, "template is empty")
	}
	for _, v := range p.RequiredVariables {
		placeholder := "{" + v + "}"
		if !strings.Contains(template, placeholder) {
			problems = append(problems, "missing required variable: "+placeholder)
		}
	}
	return problems
}

// Update replaces a prompt template after validation, taking a backup of the
// current file first.
func (s *PromptStore) Update(id, template, modifiedBy string) error {
	if problems := s.Validate(id, template); len(problems) > 0 {
		return fmt.Errorf("invalid template: %s", strings.Join(problems, "; "))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backup(); err != nil {
		return err
	}

	p := s.prompts[id]
	p.Template = template
	p.LastModified = time.Now()
	p.ModifiedBy = modifiedBy
	s.prompts[id] = p

	return s.save()
}

// Backups lists the available backup files, newest first.
func (s *PromptStore) Backups() ([]BackupInfo, error) {
	entries, err := filepath.Glob(filepath.Join(s.backupDir, "prompts_backup_*.json"))
	if err != nil {
		return nil, err
	}

	backups := make([]BackupInfo, 0, len(entries))
	for _, path := range entries {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Filename: filepath.Base(path),
			Created:  info.ModTime(),
			Size:     info.Size(),
		})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].Created.After(backups[j].Created) })
	return backups, nil
}

// Restore replaces the prompt file with the named backup and reloads.
func (s *PromptStore) Restore(backupFilename string) error {
	backupPath := filepath.Join(s.backupDir, filepath.Base(backupFilename))
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Keep a backup of the current state in case the restore was a mistake.
	if err := s.backup(); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to restore prompts: %v", err)
	}
	return s.reloadLocked()
}

// Reload re-reads the prompt file from disk.
func (s *PromptStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked()
}

func (s *PromptStore) reloadLocked() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read prompts file: %v", err)
	}
	var prompts map[string]Prompt
	if err := json.Unmarshal(data, &prompts); err != nil {
		return fmt.Errorf("failed to parse prompts file: %v", err)
	}
	s.prompts = prompts
	return nil
}

// save writes the current prompts to disk. Caller holds the lock.
func (s *PromptStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create prompts directory: %v", err)
	}
	data, err := json.MarshalIndent(s.prompts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal prompts: %v", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save prompts: %v", err)
	}
	return nil
}

// backup copies the current prompt file into the backup directory and prunes
// old backups beyond maxPromptBackups. Caller holds the lock.
func (s *PromptStore) backup() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	name := fmt.Sprintf("prompts_backup_%s.json", time.Now().Format("20060102_150405.000"))
	if err := os.WriteFile(filepath.Join(s.backupDir, name), data, 0644); err != nil {
		return fmt.Errorf("failed to write backup: %v", err)
	}

	backups, err := s.Backups()
	if err != nil {
		return nil
	}
	for _, old := range backups[min(len(backups), maxPromptBackups):] {
		os.Remove(filepath.Join(s.backupDir, old.Filename))
	}
	return nil
}
