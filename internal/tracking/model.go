package tracking

import (
	"encoding"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Tyrannas/mlflow-client/internal/models"
)

const modelMetadataFile = "MLmodel"

// LoaderFunc rebuilds a predict-capable model from a persisted data path.
type LoaderFunc func(path string) (models.Model, error)

var (
	loadersMu sync.RWMutex
	loaders   = map[string]LoaderFunc{}
)

// RegisterLoader binds an entry-point name to a loader. Pyfunc models record
// the name at log time and resolve it again at load time; entry points are a
// registered-capability lookup, never dynamic code loading.
func RegisterLoader(name string, fn LoaderFunc) {
	loadersMu.Lock()
	defer loadersMu.Unlock()
	loaders[name] = fn
}

func resolveLoader(name string) (LoaderFunc, error) {
	loadersMu.RLock()
	defer loadersMu.RUnlock()
	fn, ok := loaders[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown load entry point %q", ErrInvalidArgument, name)
	}
	return fn, nil
}

// normalizeDescriptor applies the pyfunc default and validates the variant
// invariants before any file is written: pyfunc needs a path and a resolvable
// entry point, in-memory frameworks need a model object and no path.
func normalizeDescriptor(desc models.ModelDescriptor) (models.ModelDescriptor, error) {
	if desc.Library == "" {
		desc.Library = models.FrameworkPyFunc
	}
	if !desc.Library.Known() {
		return desc, fmt.Errorf("%w: unrecognized framework %q", ErrInvalidArgument, desc.Library)
	}

	if desc.Library == models.FrameworkPyFunc {
		if desc.Path == "" {
			return desc, fmt.Errorf("%w: pyfunc models need a path to the persisted model, not an in-memory object", ErrInvalidArgument)
		}
		if desc.Model != nil {
			return desc, fmt.Errorf("%w: pyfunc models take a path, an in-memory model was given", ErrInvalidArgument)
		}
		if desc.LoadEntryPoint == "" {
			return desc, fmt.Errorf("%w: pyfunc models need a load entry point", ErrInvalidArgument)
		}
		return desc, nil
	}

	if desc.Model == nil {
		return desc, fmt.Errorf("%w: framework %q needs an in-memory model object", ErrInvalidArgument, desc.Library)
	}
	if desc.Path != "" {
		return desc, fmt.Errorf("%w: framework %q takes an in-memory model, a path was given", ErrInvalidArgument, desc.Library)
	}
	return desc, nil
}

// persistBinaryModel serializes an in-memory model to path. Models owning
// their wire format implement encoding.BinaryMarshaler; anything else goes
// through gob.
func persistBinaryModel(model models.Model, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrBackendUnavailable, path, err)
	}
	defer f.Close()

	if m, ok := model.(encoding.BinaryMarshaler); ok {
		data, err := m.MarshalBinary()
		if err != nil {
			return fmt.Errorf("%w: marshaling model: %v", ErrInvalidArgument, err)
		}
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("%w: writing %s: %v", ErrBackendUnavailable, path, err)
		}
		return nil
	}

	if err := gob.NewEncoder(f).Encode(model); err != nil {
		return fmt.Errorf("%w: encoding model: %v", ErrInvalidArgument, err)
	}
	return nil
}

func yamlMarshalMetadata(meta models.ModelMetadata) ([]byte, error) {
	content, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling model metadata: %v", ErrBackendUnavailable, err)
	}
	return content, nil
}

func writeModelMetadata(modelDir string, meta models.ModelMetadata) error {
	content, err := yamlMarshalMetadata(meta)
	if err != nil {
		return err
	}
	path := filepath.Join(modelDir, modelMetadataFile)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrBackendUnavailable, path, err)
	}
	return nil
}

// ReadModelMetadata parses the MLmodel sidecar inside a persisted model
// directory.
func ReadModelMetadata(modelDir string) (models.ModelMetadata, error) {
	var meta models.ModelMetadata
	content, err := os.ReadFile(filepath.Join(modelDir, modelMetadataFile))
	if err != nil {
		return meta, fmt.Errorf("%w: reading model metadata: %v", ErrInvalidArgument, err)
	}
	if err := yaml.Unmarshal(content, &meta); err != nil {
		return meta, fmt.Errorf("%w: parsing model metadata: %v", ErrInvalidArgument, err)
	}
	return meta, nil
}

// LoadModel reconstructs a pyfunc model from a persisted model directory by
// resolving its recorded entry point against the loader registry.
func LoadModel(modelDir string) (models.Model, error) {
	meta, err := ReadModelMetadata(modelDir)
	if err != nil {
		return nil, err
	}
	if meta.Library != models.FrameworkPyFunc {
		return nil, fmt.Errorf("%w: no loader recorded for framework %q", ErrInvalidArgument, meta.Library)
	}
	fn, err := resolveLoader(meta.LoadEntryPoint)
	if err != nil {
		return nil, err
	}
	return fn(filepath.Join(modelDir, meta.DataPath))
}
