package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"manhwa-recommender/internal/common/validation"
)

func Load(path string) (*TaskRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg TaskRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &reg, nil
}

// Save stamps LastUpdated and writes the registry as indented JSON.
func Save(reg *TaskRegistry, path string) error {
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func (r *TaskRegistry) Find(taskType string) (*Task, bool) {
	for i := range r.Tasks {
		if r.Tasks[i].TaskType == taskType {
			return &r.Tasks[i], true
		}
	}
	return nil, false
}

// Validate checks required fields, uniqueness, status values, timeouts and
// that every schema compiles.
func (r *TaskRegistry) Validate() error {
	if len(r.Tasks) == 0 {
		return fmt.Errorf("registry contains no tasks")
	}

	seen := make(map[string]bool, len(r.Tasks))
	for i := range r.Tasks {
		t := &r.Tasks[i]
		if t.TaskType == "" {
			return fmt.Errorf("task #%d missing required field: taskType", i)
		}
		if seen[t.TaskType] {
			return fmt.Errorf("duplicate task type: %s", t.TaskType)
		}
		seen[t.TaskType] = true

		if t.DisplayName == "" {
			return fmt.Errorf("task %s missing required field: displayName", t.TaskType)
		}
		if t.Category == "" {
			return fmt.Errorf("task %s missing required field: category", t.TaskType)
		}
		if !validStatus(t.Status) {
			return fmt.Errorf("task %s has unknown status %q", t.TaskType, t.Status)
		}
		if t.Timeout != "" {
			if _, err := time.ParseDuration(t.Timeout); err != nil {
				return fmt.Errorf("task %s has invalid timeout: %w", t.TaskType, err)
			}
		}
		if _, err := t.InputValidator(); err != nil {
			return err
		}
		if _, err := compile(t.TaskType+" output", t.OutputSchema); err != nil {
			return err
		}
	}
	return nil
}

// InputValidator compiles the input schema. It returns nil, nil when the
// task declares none.
func (t *Task) InputValidator() (*validation.SchemaValidator, error) {
	return compile(t.TaskType+" input", t.InputSchema)
}

func compile(name string, schema map[string]interface{}) (*validation.SchemaValidator, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode %s schema: %w", name, err)
	}
	return validation.NewSchemaValidator(name, string(raw))
}

func validStatus(s string) bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}
