package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// MaxIncludeDepth bounds nested @include directives.
const MaxIncludeDepth = 8

// IncludeKey names the files merged underneath a configuration file.
const IncludeKey = "@include"

var (
	// ErrUnsupportedFormat is returned for a file extension no loader handles.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrIncludeDepth is returned when includes nest too deeply.
	ErrIncludeDepth = errors.New("include depth exceeded")
)

type decodeFunc func(data []byte) (map[string]any, error)

// FileLoader loads one configuration file.
type FileLoader struct {
	fs     FileSystem
	path   string
	decode decodeFunc
}

// NewFileLoader returns a loader for path, choosing the format from its
// extension: .toml, .yaml or .yml.
func NewFileLoader(path string) (*FileLoader, error) {
	decode, err := decoderFor(path)
	if err != nil {
		return nil, err
	}
	return &FileLoader{fs: DefaultFS(), path: path, decode: decode}, nil
}

// WithFS replaces the file system.
func (l *FileLoader) WithFS(fsys FileSystem) *FileLoader {
	l.fs = fsys
	return l
}

// Path returns the configured path.
func (l *FileLoader) Path() string {
	return l.path
}

func decoderFor(path string) (decodeFunc, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return decodeTOML, nil
	case ".yaml", ".yml":
		return decodeYAML, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

func decodeTOML(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeYAML(data []byte) (map[string]any, error) {
	var m map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return m, nil
}

// Load reads the file and its includes. A missing file yields nil, nil.
func (l *FileLoader) Load() (map[string]any, error) {
	return l.load(l.path, l.decode, MaxIncludeDepth)
}

func (l *FileLoader) load(path string, decode decodeFunc, depth int) (map[string]any, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncludeDepth, path)
	}

	data, err := l.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	config, err := decode(data)
	if err != nil {
		return nil, newParseError(path, err)
	}
	if config == nil {
		return nil, nil
	}

	includes, ok := config[IncludeKey]
	if !ok {
		return config, nil
	}
	delete(config, IncludeKey)

	list, err := includeList(path, includes)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	merged := make(map[string]any)
	for _, inc := range list {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(base, inc)
		}
		incDecode, err := decoderFor(inc)
		if err != nil {
			return nil, err
		}
		incConfig, err := l.load(inc, incDecode, depth-1)
		if err != nil {
			return nil, fmt.Errorf("loading include %s: %w", inc, err)
		}
		merged = DeepMerge(merged, incConfig)
	}
	// The including file wins over what it includes.
	return DeepMerge(merged, config), nil
}

func includeList(path string, v any) ([]string, error) {
	switch v := v.(type) {
	case string:
		return []string{v}, nil
	case []any:
		list := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: %s entries must be strings, got %T", path, IncludeKey, item)
			}
			list = append(list, s)
		}
		return list, nil
	}
	return nil, fmt.Errorf("%s: %s must be a string or array of strings, got %T", path, IncludeKey, v)
}

// ParseError represents an error while parsing a configuration file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func newParseError(path string, err error) *ParseError {
	pe := &ParseError{Path: path, Message: err.Error(), Err: err}
	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		pe.Line, pe.Column = derr.Position()
	}
	return pe
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
