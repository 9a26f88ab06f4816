package connector

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/waivern/wct/pkg/component"
	"github.com/waivern/wct/pkg/message"
	"github.com/waivern/wct/pkg/schema"
)

const (
	defaultMaxFiles    = 1000
	defaultMaxFileSize = 1 << 20 // 1 MiB
)

// binaryExtensions is a heuristic skip list; content-type sniffing is
// not worth the cost for compliance scans.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".pdf": true, ".zip": true, ".gz": true, ".tar": true,
	".jar": true, ".war": true, ".class": true, ".exe": true, ".dll": true,
	".so": true, ".dylib": true, ".bin": true, ".db": true, ".sqlite": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".mp3": true,
	".mp4": true, ".avi": true, ".mov": true,
}

// FilesystemConfig configures the filesystem connector.
type FilesystemConfig struct {
	Path        string `json:"path"`
	MaxFiles    int    `json:"max_files,omitempty"`
	MaxFileSize int64  `json:"max_file_size,omitempty"`
}

func (c *FilesystemConfig) validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", component.ErrConfig)
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = defaultMaxFiles
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = defaultMaxFileSize
	}
	return nil
}

// FilesystemConnector walks a directory tree (or reads a single file)
// and emits one content item per readable text file.
type FilesystemConnector struct {
	cfg FilesystemConfig
}

// Extract reads up to max_files files under the configured path.
func (c *FilesystemConnector) Extract(ctx context.Context, runID string) (*message.Message, error) {
	info, err := os.Stat(c.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("filesystem connector: %w", err)
	}

	var items []ContentItem
	add := func(path string, size int64) error {
		if size > c.cfg.MaxFileSize {
			return nil
		}
		if binaryExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		items = append(items, ContentItem{
			Content:       string(data),
			Source:        path,
			ConnectorType: "filesystem",
		})
		return nil
	}

	if !info.IsDir() {
		if err := add(c.cfg.Path, info.Size()); err != nil {
			return nil, err
		}
	} else {
		err = filepath.WalkDir(c.cfg.Path, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != c.cfg.Path {
					return filepath.SkipDir
				}
				return nil
			}
			if len(items) >= c.cfg.MaxFiles {
				return filepath.SkipAll
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			return add(path, fi.Size())
		})
		if err != nil {
			return nil, fmt.Errorf("filesystem connector walk: %w", err)
		}
	}

	msg := newStandardInput("filesystem_extraction", c.cfg.Path, items)
	return msg.WithRunID(runID), nil
}

// FilesystemFactory registers the filesystem connector type.
type FilesystemFactory struct{}

func (FilesystemFactory) Name() string                  { return "filesystem" }
func (FilesystemFactory) InputSchemas() []schema.Schema { return nil }
func (FilesystemFactory) OutputSchemas() []schema.Schema {
	return []schema.Schema{StandardInputSchema}
}
func (FilesystemFactory) ServiceDependencies() []string { return nil }

func (FilesystemFactory) CanCreate(properties map[string]any) error {
	var cfg FilesystemConfig
	if err := component.DecodeConfig(properties, &cfg); err != nil {
		return err
	}
	return cfg.validate()
}

func (f FilesystemFactory) Create(properties map[string]any, _ *component.Container) (any, error) {
	var cfg FilesystemConfig
	if err := component.DecodeConfig(properties, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &FilesystemConnector{cfg: cfg}, nil
}
