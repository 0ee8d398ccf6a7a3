package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/sagredo/internal/domain"
)

// taskFile is the batch file layout. A bare list of tasks is accepted too.
type taskFile struct {
	// Preamble applies to every task that does not set its own.
	Preamble string             `yaml:"preamble"`
	Tasks    []domain.ProofTask `yaml:"tasks"`
}

// loadTasks reads and validates a YAML task file.
func loadTasks(path string) ([]domain.ProofTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	return parseTasks(data)
}

func parseTasks(data []byte) ([]domain.ProofTask, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse task file: %w", err)
	}
	var file taskFile
	if len(doc.Content) > 0 {
		root := doc.Content[0]
		var err error
		if root.Kind == yaml.SequenceNode {
			err = root.Decode(&file.Tasks)
		} else {
			err = root.Decode(&file)
		}
		if err != nil {
			return nil, fmt.Errorf("decode task file: %w", err)
		}
	}
	if len(file.Tasks) == 0 {
		return nil, fmt.Errorf("task file has no tasks")
	}

	for i := range file.Tasks {
		t := &file.Tasks[i]
		if t.Preamble == "" {
			t.Preamble = file.Preamble
		}
		if t.Name == "" {
			t.Name = fmt.Sprintf("task-%d", i+1)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Tasks, nil
}

// loadTask reads a single task from YAML.
func loadTask(path string) (domain.ProofTask, error) {
	var task domain.ProofTask
	data, err := os.ReadFile(path)
	if err != nil {
		return task, fmt.Errorf("read task: %w", err)
	}
	if err := yaml.Unmarshal(data, &task); err != nil {
		return task, fmt.Errorf("parse task: %w", err)
	}
	return task, nil
}
