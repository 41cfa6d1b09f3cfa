package storage

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"taskflow/domain"
)

//go:embed seed/default.json
var defaultSeed []byte

// Seed is the initial content of a Memory store.
type Seed struct {
	Categories []domain.Category `json:"categories"`
	Tasks      []domain.Task     `json:"tasks"`
}

// DefaultSeed returns the built-in categories.
func DefaultSeed() (Seed, error) {
	return decodeSeed(defaultSeed)
}

// LoadSeed reads a seed file. An empty path yields DefaultSeed.
func LoadSeed(path string) (Seed, error) {
	if path == "" {
		return DefaultSeed()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed: %w", err)
	}
	return decodeSeed(data)
}

func decodeSeed(data []byte) (Seed, error) {
	var s Seed
	if err := json.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	for i := range s.Tasks {
		if s.Tasks[i].Priority == "" {
			s.Tasks[i].Priority = domain.PriorityMedium
		}
		if s.Tasks[i].Status == "" {
			s.Tasks[i].Status = domain.StatusTodo
		}
	}
	return s, nil
}
