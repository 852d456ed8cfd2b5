package strategy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type stateFile struct {
	StopConfig
	UpdatedAt time.Time `json:"updated_at"`
}

// LoadState reads the stop config from a JSON file. It returns
// DefaultStopConfig and false if the file doesn't exist.
func LoadState(filePath string) (StopConfig, bool, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultStopConfig, false, nil
		}
		return StopConfig{}, false, err
	}
	st := stateFile{StopConfig: DefaultStopConfig}
	if err := json.Unmarshal(data, &st); err != nil {
		return StopConfig{}, false, fmt.Errorf("parse %s: %w", filePath, err)
	}
	return st.StopConfig, true, nil
}

// SaveState writes the stop config to a JSON file.
func SaveState(filePath string, c StopConfig) error {
	data, err := json.MarshalIndent(stateFile{StopConfig: c, UpdatedAt: time.Now()}, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(filePath, data, 0644)
}
