package tool

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk description of one tool unit. Files may be YAML or
// JSON; the tool name comes from the file name, not from the manifest.
type Manifest struct {
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string       `yaml:"version,omitempty" json:"version,omitempty"`
	Handler     *HandlerSpec `yaml:"handler" json:"handler"`
}

// HandlerSpec binds a manifest to a handler implementation.
type HandlerSpec struct {
	Type string `yaml:"type" json:"type"`

	// native
	Builtin string `yaml:"builtin,omitempty" json:"builtin,omitempty"`

	// stdio
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Dir     string            `yaml:"dir,omitempty" json:"dir,omitempty"`

	// http
	Endpoint string            `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// TimeoutMS bounds one stdio or http call. Zero means no timeout.
	TimeoutMS int `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
}

var (
	errEmptyManifest  = errors.New("manifest is empty")
	errMissingHandler = errors.New("manifest has no handler")
)

// ParseManifest decodes a YAML or JSON manifest. Unknown fields are rejected.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return Manifest{}, errEmptyManifest
		}
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Handler == nil {
		return Manifest{}, errMissingHandler
	}
	return m, nil
}

// timeout returns the per-call timeout configured for the unit.
func (s HandlerSpec) timeout() time.Duration {
	if s.TimeoutMS <= 0 {
		return 0
	}
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// bind resolves a handler for the manifest. baseDir is the directory holding
// the manifest and anchors relative stdio commands.
func bind(name string, m Manifest, baseDir string, opts LoadOptions) (Handler, Origin, error) {
	if m.Handler == nil {
		return nil, "", errMissingHandler
	}
	spec := *m.Handler

	switch Origin(strings.ToLower(strings.TrimSpace(spec.Type))) {
	case OriginNative:
		builtin := strings.TrimSpace(spec.Builtin)
		if builtin == "" {
			builtin = name
		}
		h, ok := opts.builtin(builtin)
		if !ok {
			return nil, "", fmt.Errorf("unknown builtin %q", builtin)
		}
		return h, OriginNative, nil
	case OriginStdio:
		command := strings.TrimSpace(os.ExpandEnv(spec.Command))
		if command == "" {
			return nil, "", errors.New("stdio handler requires command")
		}
		spec.Command = resolveRelative(baseDir, command)
		if dir := strings.TrimSpace(os.ExpandEnv(spec.Dir)); dir != "" {
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(baseDir, dir)
			}
			spec.Dir = dir
		}
		spec.Args = expandAll(spec.Args)
		spec.Env = expandStringMap(spec.Env)
		return NewStdioHandler(name, spec), OriginStdio, nil
	case OriginHTTP:
		endpoint := strings.TrimSpace(os.ExpandEnv(spec.Endpoint))
		if endpoint == "" {
			return nil, "", errors.New("http handler requires endpoint")
		}
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, "", fmt.Errorf("http handler endpoint %q is not an http(s) URL", endpoint)
		}
		spec.Endpoint = endpoint
		spec.Headers = expandStringMap(spec.Headers)
		return NewHTTPHandler(name, spec, opts.HTTPClient), OriginHTTP, nil
	case "":
		return nil, "", errors.New("handler type is required")
	default:
		return nil, "", fmt.Errorf("unsupported handler type %q", spec.Type)
	}
}

// resolveRelative anchors path-like values (those containing a separator) to
// baseDir. Bare command names are left for PATH lookup.
func resolveRelative(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	if !strings.ContainsRune(p, filepath.Separator) && !strings.Contains(p, "/") {
		return p
	}
	return filepath.Join(baseDir, filepath.Clean(p))
}

func expandAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, os.ExpandEnv(v))
	}
	return out
}

func expandStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[key] = os.ExpandEnv(value)
	}
	return out
}
