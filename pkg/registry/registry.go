// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agri-pipeline/internal/common/validation"
)

// Build returns the registry of every pipeline task, generated from the
// static schemas.
func Build(now time.Time) *PipelineRegistry {
	defs := definitions()
	reg := &PipelineRegistry{
		Version:     DefaultVersion,
		LastUpdated: now.UTC().Format(time.RFC3339),
		Tasks:       make([]Task, 0, len(defs)),
	}
	for _, d := range defs {
		reg.Tasks = append(reg.Tasks, d.task())
	}
	return reg
}

// Find returns the task with id.
func (r *PipelineRegistry) Find(id string) (*Task, bool) {
	for i := range r.Tasks {
		if r.Tasks[i].ID == id {
			return &r.Tasks[i], true
		}
	}
	return nil, false
}

// Merge refreshes generated fields from built while keeping the
// hand-maintained version, status and tags of tasks already in r. Tasks no
// longer built are dropped.
func (r *PipelineRegistry) Merge(built *PipelineRegistry) *PipelineRegistry {
	out := &PipelineRegistry{
		Version:     r.Version,
		LastUpdated: built.LastUpdated,
		Tasks:       make([]Task, 0, len(built.Tasks)),
	}
	if out.Version == "" {
		out.Version = built.Version
	}
	for _, task := range built.Tasks {
		if existing, ok := r.Find(task.ID); ok {
			if existing.Version != "" {
				task.Version = existing.Version
			}
			if existing.ImplementationStatus != "" {
				task.ImplementationStatus = existing.ImplementationStatus
			}
			if len(existing.Tags) > 0 {
				task.Tags = existing.Tags
			}
		}
		out.Tasks = append(out.Tasks, task)
	}
	return out
}

func LoadRegistry(path string) (*PipelineRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg PipelineRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

func SaveRegistry(reg *PipelineRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

// Validate checks required fields, unique IDs and that every schema compiles.
func Validate(reg *PipelineRegistry) error {
	if len(reg.Tasks) == 0 {
		return fmt.Errorf("registry contains no tasks")
	}

	ids := make(map[string]bool)
	for _, task := range reg.Tasks {
		if task.ID == "" {
			return fmt.Errorf("task missing required field: ID")
		}
		if ids[task.ID] {
			return fmt.Errorf("duplicate task ID: %s", task.ID)
		}
		ids[task.ID] = true

		if task.DisplayName == "" {
			return fmt.Errorf("task %s missing required field: DisplayName", task.ID)
		}
		if task.TaskType == "" {
			return fmt.Errorf("task %s missing required field: TaskType", task.ID)
		}
		if task.Endpoint == "" {
			return fmt.Errorf("task %s missing required field: Endpoint", task.ID)
		}
		for name, doc := range map[string]map[string]interface{}{"input": task.InputSchema, "output": task.OutputSchema} {
			if len(doc) == 0 {
				return fmt.Errorf("task %s has no %s schema", task.ID, name)
			}
			raw, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("task %s %s schema: %w", task.ID, name, err)
			}
			if err := validation.CheckSchema(raw); err != nil {
				return fmt.Errorf("task %s %s schema: %w", task.ID, name, err)
			}
		}
	}
	return nil
}
