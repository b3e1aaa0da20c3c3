// Package config loads .chatclm.toml, the project-level configuration
// file cmd/chatclm merges with its flags.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the cmd/chatclm tunables that .chatclm.toml can set; a zero field
// means "not set in the file", so the CLI layer only overrides a flag's
// compiled-in default when the file sets a non-zero value.
type Config struct {
	DataDir                  string  `toml:"data-dir"`
	TokenizerPath            string  `toml:"tokenizer-path"`
	DatasetCheckpoint        string  `toml:"dataset-checkpoint"`
	EnsembleCheckpoint       string  `toml:"ensemble-checkpoint"`
	Threads                  int     `toml:"threads"`
	EnsembleSize             int     `toml:"ensemble-size"`
	K                        int     `toml:"k"`
	D                        int     `toml:"d"`
	F                        int     `toml:"f"`
	Steps                    int     `toml:"steps"`
	CompressionLevel         int     `toml:"compression-level"`
	DictionarySizePercentage float64 `toml:"dictionary-size-percentage"`
	PredictorTopK            int     `toml:"predictor-top-k"`
	MaxPromptLen             int     `toml:"max-prompt-len"`
}

// Load reads path if it exists and returns the parsed Config. A missing
// file is not an error — it returns the zero Config, and callers fall
// back to their compiled-in defaults for every field.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
