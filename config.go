package linkdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/linkdb/internal/compress"
	"github.com/hupe1980/linkdb/internal/fs"
)

const (
	// ConfigFileName is the configuration document inside a database directory.
	ConfigFileName = "linkdb.json"

	configVersion = 1
)

// config is the persisted configuration document.
type config struct {
	Version      int    `json:"version"`
	PageCapacity int    `json:"pageCapacity"`
	BlockSize    int    `json:"blockSize"`
	MaxMemory    int64  `json:"maxMemory"`
	NextPageID   int    `json:"nextPageId"`
	Compression  string `json:"compression"`
	Codec        string `json:"codec"`
}

func (c *config) validate() error {
	switch {
	case c.Version != configVersion:
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidConfig, c.Version)
	case c.PageCapacity < 1:
		return fmt.Errorf("%w: page capacity %d", ErrInvalidConfig, c.PageCapacity)
	case c.BlockSize < 1:
		return fmt.Errorf("%w: block size %d", ErrInvalidConfig, c.BlockSize)
	case c.MaxMemory < 0:
		return fmt.Errorf("%w: max memory %d", ErrInvalidConfig, c.MaxMemory)
	case c.NextPageID < 0:
		return fmt.Errorf("%w: next page id %d", ErrInvalidConfig, c.NextPageID)
	}
	if _, err := compress.Parse(c.Compression); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func configPath(dir string) string {
	return filepath.Join(dir, ConfigFileName)
}

// readConfig loads the configuration document of dir. A missing document
// yields ErrNotExist.
func readConfig(fsys fs.FileSystem, dir string) (*config, error) {
	data, err := fs.ReadFile(fsys, configPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, err
	}

	var c config
	if err := gojson.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// writeConfig atomically replaces the configuration document of dir.
func writeConfig(fsys fs.FileSystem, dir string, c *config) error {
	data, err := gojson.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return fs.WriteFileAtomic(fsys, configPath(dir), data)
}

// configExists reports whether dir already holds a configuration document.
func configExists(fsys fs.FileSystem, dir string) (bool, error) {
	_, err := fsys.Stat(configPath(dir))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
