package tool

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

var manifestExtensions = map[string]struct{}{
	".yaml": {},
	".yml":  {},
	".json": {},
}

// LoadOptions configures LoadAll.
type LoadOptions struct {
	Logger   *slog.Logger
	Observer Observer
	// Builtins replaces the default builtin set for native units when non-nil.
	Builtins map[string]Handler
	// HTTPClient is shared by http units. Defaults to a pooled client.
	HTTPClient *http.Client
}

func (o LoadOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o LoadOptions) observer() Observer {
	if o.Observer == nil {
		return NoopObserver{}
	}
	return o.Observer
}

func (o LoadOptions) builtin(name string) (Handler, bool) {
	if o.Builtins != nil {
		h, ok := o.Builtins[name]
		return h, ok && h != nil
	}
	return LookupBuiltin(name)
}

// LoadAll scans dir for tool manifests and builds a registry from every unit
// that loads. A unit that fails is logged and skipped. A missing dir yields an
// empty registry; any other failure to read dir is returned.
func LoadAll(dir string, opts LoadOptions) (*Registry, error) {
	logger := opts.logger()
	observer := opts.observer()

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("tools directory not found, starting with no tools", "dir", dir)
		return EmptyRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("tool: stat tools directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tool: tools path %q is not a directory", dir)
	}

	// os.ReadDir sorts by file name, so duplicate resolution is deterministic.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("tool: read tools directory %q: %w", dir, err)
	}

	tools := make(map[string]Tool, len(entries))
	for _, entry := range entries {
		name, ok := unitName(entry)
		if !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		t, err := loadUnit(name, path, opts)
		if err == nil {
			if existing, dup := tools[name]; dup {
				err = &LoadError{
					Name: name,
					Path: path,
					Err:  fmt.Errorf("duplicate tool name, already loaded from %s", existing.Source),
				}
			}
		}
		if err != nil {
			logger.Error("tool failed to load", "tool", name, "path", path, "error", err)
			observer.ObserveLoad(LoadObservation{
				ToolName: name,
				Path:     path,
				Success:  false,
				Error:    err.Error(),
			})
			continue
		}

		tools[name] = t
		logger.Info("tool loaded", "tool", name, "origin", string(t.Origin), "path", path)
		observer.ObserveLoad(LoadObservation{
			ToolName: name,
			Path:     path,
			Origin:   t.Origin,
			Success:  true,
		})
	}

	return &Registry{tools: tools}, nil
}

// unitName derives the tool name for a directory entry, reporting false for
// entries that are not loadable units.
func unitName(entry fs.DirEntry) (string, bool) {
	if entry.IsDir() {
		return "", false
	}
	fileName := entry.Name()
	if strings.HasPrefix(fileName, ".") {
		return "", false
	}
	ext := filepath.Ext(fileName)
	if _, ok := manifestExtensions[strings.ToLower(ext)]; !ok {
		return "", false
	}
	name := strings.TrimSuffix(fileName, ext)
	if strings.TrimSpace(name) == "" {
		return "", false
	}
	return name, true
}

func loadUnit(name, path string, opts LoadOptions) (t Tool, err error) {
	defer func() {
		if r := recover(); r != nil {
			t = Tool{}
			err = &LoadError{Name: name, Path: path, Err: fmt.Errorf("panic while loading: %v", r)}
		}
	}()

	// #nosec G304 -- path comes from listing the configured tools directory.
	data, err := os.ReadFile(path)
	if err != nil {
		return Tool{}, &LoadError{Name: name, Path: path, Err: err}
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return Tool{}, &LoadError{Name: name, Path: path, Err: err}
	}
	handler, origin, err := bind(name, manifest, filepath.Dir(path), opts)
	if err != nil {
		return Tool{}, &LoadError{Name: name, Path: path, Err: err}
	}

	return Tool{
		Name:        name,
		Origin:      origin,
		Source:      path,
		Description: strings.TrimSpace(manifest.Description),
		Handler:     handler,
	}, nil
}
