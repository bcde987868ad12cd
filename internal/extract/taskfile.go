package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

// TaskFile is the on-disk form of a task list
type TaskFile struct {
	Properties []*domain.PropertyTask `yaml:"properties" json:"properties"`
}

// LoadTaskFile reads a YAML or JSON task list. Tasks keep their id and
// status so a finished file can be rerun without repeating work; missing
// or repeated ids are generated and missing statuses become pending.
func LoadTaskFile(path string) ([]*domain.PropertyTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	return ParseTasks(data, filepath.Ext(path))
}

// ParseTasks decodes a task list. ext selects the format (".json", else YAML).
func ParseTasks(data []byte, ext string) ([]*domain.PropertyTask, error) {
	var tf TaskFile
	switch strings.ToLower(ext) {
	case ".json":
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			err := json.Unmarshal(trimmed, &tf.Properties)
			if err != nil {
				return nil, fmt.Errorf("parse task file: %w", err)
			}
		} else if err := json.Unmarshal(trimmed, &tf); err != nil {
			return nil, fmt.Errorf("parse task file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &tf); err != nil {
			var list []*domain.PropertyTask
			if yaml.Unmarshal(data, &list) != nil {
				return nil, fmt.Errorf("parse task file: %w", err)
			}
			tf.Properties = list
		}
	}

	tasks := make([]*domain.PropertyTask, 0, len(tf.Properties))
	seen := make(map[string]bool, len(tf.Properties))
	for _, t := range tf.Properties {
		if t == nil {
			continue
		}
		t.PropertyName = Sanitize(t.PropertyName)
		if t.PropertyName == "" {
			continue
		}
		t.RoomNumber = Sanitize(t.RoomNumber)
		t.Address = Sanitize(t.Address)
		t.ManagementCompany = Sanitize(t.ManagementCompany)
		if t.ID == "" || seen[t.ID] {
			t.ID = uuid.New().String()
		}
		seen[t.ID] = true
		switch t.Status {
		case domain.TaskCompleted, domain.TaskError:
		default:
			t.Status = domain.TaskPending
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// WriteTasks encodes tasks as a YAML task file
func WriteTasks(w io.Writer, tasks []*domain.PropertyTask) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(TaskFile{Properties: tasks}); err != nil {
		return err
	}
	return enc.Close()
}
