package idl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/Masterminds/semver/v3"
)

const logPrefix = "idl:loader"

// ErrDocumentNotFound is returned by a Source that has no document for a key.
var ErrDocumentNotFound = errors.New("schema document not found")

// Source provides schema documents by configuration key.
type Source interface {
	Fetch(ctx context.Context, key string) (*Document, error)
}

// FileSource maps configuration keys to document paths.
type FileSource map[string]string

// Fetch reads and parses the document configured for key.
func (f FileSource) Fetch(_ context.Context, key string) (*Document, error) {
	path, ok := f[key]
	if !ok || path == "" {
		return nil, ErrDocumentNotFound
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read %s: %w", logPrefix, path, err)
	}
	return ParseDocument(data, FormatFromPath(path))
}

// StaticSource serves documents compiled into the binary.
type StaticSource map[string][]byte

// Fetch parses the embedded document for key.
func (s StaticSource) Fetch(_ context.Context, key string) (*Document, error) {
	data, ok := s[key]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return ParseDocument(data, DetectFormat(data))
}

// LoaderParams configures a Loader.
type LoaderParams struct {
	// Sources are tried in order; the first one that knows the key wins.
	Sources []Source
	// VersionConstraint, when set, must be satisfied by every loaded document version.
	VersionConstraint string
}

// Loader builds schemas by key and caches them for the life of the process.
type Loader struct {
	sources    []Source
	constraint string

	mu    sync.Mutex
	cache map[string]*Schema
}

// NewLoader creates a Loader.
func NewLoader(p LoaderParams) *Loader {
	return &Loader{
		sources:    p.Sources,
		constraint: p.VersionConstraint,
		cache:      make(map[string]*Schema),
	}
}

// Load returns the schema for key, building it on first use.
func (l *Loader) Load(ctx context.Context, key string) (*Schema, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.cache[key]; ok {
		return s, nil
	}

	for i, src := range l.sources {
		doc, err := src.Fetch(ctx, key)
		if errors.Is(err, ErrDocumentNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s - source %d failed for %q: %w", logPrefix, i, key, err)
		}

		if err := CheckVersion(doc.Version, l.constraint); err != nil {
			return nil, err
		}
		s, err := Build(doc)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid schema for %q: %w", logPrefix, key, err)
		}

		slog.Info(fmt.Sprintf("%s - Loaded schema %s %s for key %q", logPrefix, s.Name, s.Version, key))
		l.cache[key] = s
		return s, nil
	}
	return nil, fmt.Errorf("%s - no schema configured for %q: %w", logPrefix, key, ErrDocumentNotFound)
}

// Forget drops a cached schema so the next Load rebuilds it.
func (l *Loader) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, key)
}

// LoadFile parses and builds a single document from disk.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read %s: %w", logPrefix, path, err)
	}
	doc, err := ParseDocument(data, FormatFromPath(path))
	if err != nil {
		return nil, err
	}
	return Build(doc)
}

// CheckVersion validates a document version against a semver constraint.
// An empty constraint accepts anything, including an empty version.
func CheckVersion(version, constraint string) error {
	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return schemaErrorf(CodeVersionMismatch, "invalid version constraint %q: %v", constraint, err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return schemaErrorf(CodeVersionMismatch, "schema version %q is not semver", version)
	}
	if ok, errs := c.Validate(v); !ok {
		msg := fmt.Sprintf("schema version %s does not satisfy %s", v, constraint)
		if len(errs) > 0 {
			msg += ": " + errs[0].Error()
		}
		return schemaErrorf(CodeVersionMismatch, "%s", msg)
	}
	return nil
}
