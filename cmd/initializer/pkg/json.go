package pkg

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/leafsii/auction-house/internal/initializer"
)

// InitConfig is what the initializer reports next to the genesis file: the
// demo market it wrote and where the genesis lives.
type InitConfig struct {
	GenesisPath string             `json:"genesis_path"`
	Params      initializer.Params `json:"params"`
	Result      initializer.Result `json:"result"`
}

// ReadConfig reads JSON at path into Config.
// Returns os.ErrNotExist if the file doesn't exist.
// Returns nil with zero-value Config if the file is empty.
func ReadConfig(path string) (InitConfig, error) {
	var cfg InitConfig

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
		return cfg, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode: %w", err)
	}
	return cfg, nil
}

// WriteConfig writes cfg as indented JSON through a temp file and rename.
func WriteConfig(path string, cfg InitConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(fs.FileMode(0o644)); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
