package models

// Framework tags the library a logged model was trained with. The zero value
// is FrameworkPyFunc, matching the default persistence mode.
type Framework string

const (
	FrameworkPyFunc  Framework = "pyfunc"
	FrameworkSKLearn Framework = "sklearn"
	FrameworkKeras   Framework = "keras"
	FrameworkPyTorch Framework = "pytorch"
)

// Known reports whether f is a recognized framework tag. Recognized does not
// imply persistable: only pyfunc and sklearn have persistence behavior.
func (f Framework) Known() bool {
	switch f {
	case FrameworkPyFunc, FrameworkSKLearn, FrameworkKeras, FrameworkPyTorch:
		return true
	}
	return false
}

// Model is the capability a reconstructed or in-memory model must expose.
// The tracked libraries are otherwise opaque to the client.
type Model interface {
	Predict(input any) (any, error)
}

// ModelDescriptor names what LogModel should persist: either an in-memory
// Model tagged with its framework, or a filesystem path plus the entry point
// that can rebuild a Model from it (the pyfunc variant).
type ModelDescriptor struct {
	Model          Model
	Path           string
	Library        Framework
	LoadEntryPoint string
}

// ModelMetadata is the MLmodel sidecar written next to a persisted model.
type ModelMetadata struct {
	RunID          string    `yaml:"run_id"`
	Library        Framework `yaml:"library"`
	LoadEntryPoint string    `yaml:"load_entry_point,omitempty"`
	DataPath       string    `yaml:"data_path,omitempty"`
	UpdateTime     string    `yaml:"update_time"`
}
