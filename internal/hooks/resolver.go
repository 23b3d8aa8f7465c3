package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvHooksURI is consulted when no hooks URI is supplied explicitly.
const EnvHooksURI = "MLFLOW_HOOKS_URI"

// ProjectFile is the project descriptor looked up inside a directory source.
const ProjectFile = "MLproject"

const fetchTimeout = 10 * time.Second

// Resolve builds a Registry from a hooks URI, trying in order:
//   - an http(s) URL: GET it and parse the body as a hook document
//   - a directory path: parse the MLproject file's "hooks" field
//   - a file path: parse the file as a JSON hook document
//
// When uri is empty the MLFLOW_HOOKS_URI environment variable is used instead;
// if that is unset too, an empty registry is returned.
//
// Resolution failures are non-fatal to the caller: the returned registry is
// always usable, degraded to empty for whatever could not be parsed, and the
// error describes what went wrong so the owning client can surface it.
func Resolve(uri string) (Registry, error) {
	if uri == "" {
		uri = os.Getenv(EnvHooksURI)
		if uri == "" {
			return Registry{}, nil
		}
	}

	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return resolveURL(uri)
	default:
		return resolvePath(uri)
	}
}

func resolveURL(url string) (Registry, error) {
	client := &http.Client{Timeout: fetchTimeout}
	resp, err := client.Get(url)
	if err != nil {
		return Registry{}, fmt.Errorf("%w: GET %s: %v", ErrSourceUnreachable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Registry{}, fmt.Errorf("%w: GET %s returned status %d", ErrSourceUnreachable, url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Registry{}, fmt.Errorf("%w: reading %s: %v", ErrSourceUnreachable, url, err)
	}
	return parseJSONDocument(body)
}

func resolvePath(path string) (Registry, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Registry{}, fmt.Errorf("%w: %q", ErrSourceInvalid, path)
		}
		return Registry{}, fmt.Errorf("%w: stat %s: %v", ErrSourceUnreachable, path, err)
	}

	if info.IsDir() {
		return resolveProjectDir(path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, fmt.Errorf("%w: reading %s: %v", ErrSourceUnreachable, path, err)
	}
	return parseJSONDocument(content)
}

// resolveProjectDir reads the hooks field of the project descriptor inside dir.
func resolveProjectDir(dir string) (Registry, error) {
	path := filepath.Join(dir, ProjectFile)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Registry{}, fmt.Errorf("%w: directory %s has no %s file", ErrSourceUnreachable, dir, ProjectFile)
		}
		return Registry{}, fmt.Errorf("%w: reading %s: %v", ErrSourceUnreachable, path, err)
	}

	var project struct {
		Hooks map[string]yaml.Node `yaml:"hooks"`
	}
	if err := yaml.Unmarshal(content, &project); err != nil {
		return Registry{}, fmt.Errorf("%w: %s: %v", ErrConfigMalformed, path, err)
	}

	registry := Registry{}
	var errs []error
	for key, node := range project.Hooks {
		event := Event(key)
		if !event.Known() {
			continue
		}
		var regs []Registration
		if err := node.Decode(&regs); err != nil {
			errs = append(errs, fmt.Errorf("%w: event %q: %v", ErrConfigMalformed, key, err))
			continue
		}
		registry[event] = regs
	}
	return registry, errors.Join(errs...)
}

// parseJSONDocument decodes a hook configuration document, degrading per
// event: a key whose value does not decode to a registration list is dropped
// and reported, the remaining events stay usable.
func parseJSONDocument(data []byte) (Registry, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Registry{}, fmt.Errorf("%w: %v", ErrConfigMalformed, err)
	}

	registry := Registry{}
	var errs []error
	for key, value := range raw {
		event := Event(key)
		if !event.Known() {
			continue
		}
		var regs []Registration
		if err := json.Unmarshal(value, &regs); err != nil {
			errs = append(errs, fmt.Errorf("%w: event %q: %v", ErrConfigMalformed, key, err))
			continue
		}
		for _, reg := range regs {
			if reg.URL == "" {
				errs = append(errs, fmt.Errorf("%w: event %q: registration without url", ErrConfigMalformed, key))
				continue
			}
			registry[event] = append(registry[event], reg)
		}
	}
	return registry, errors.Join(errs...)
}
