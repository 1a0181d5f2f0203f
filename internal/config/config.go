package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type File struct {
	ModelDir  string `yaml:"model_dir"`
	Listen    string `yaml:"listen"`
	QueueSize int    `yaml:"queue_size"`
	Log       struct {
		Verbose bool `yaml:"verbose"`
		JSON    bool `yaml:"json"`
	} `yaml:"log"`
}

func Load(path string) (File, error) {
	var cfg File
	if strings.TrimSpace(path) == "" {
		return cfg, errors.New("config path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}

	if cfg.QueueSize < 0 {
		return cfg, fmt.Errorf("queue_size must not be negative, got %d", cfg.QueueSize)
	}
	return cfg, nil
}
