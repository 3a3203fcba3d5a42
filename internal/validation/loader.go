package validation

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/parley-sh/parley/pkg/schema"
)

var (
	loaderOnce      sync.Once
	loaderValidator *DocumentValidator
	loaderErr       error
)

func documentValidator() (*DocumentValidator, error) {
	loaderOnce.Do(func() {
		loaderValidator, loaderErr = NewDocumentValidator()
	})
	return loaderValidator, loaderErr
}

// ParseWorkflow decodes a workflow document from YAML or JSON (JSON being
// valid YAML), validates it structurally, and returns the typed workflow.
// Semantic validation (state references, per-kind fields) happens in the
// engine before a run.
func ParseWorkflow(data []byte) (*schema.Workflow, error) {
	v, err := documentValidator()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow schema unavailable").WithCause(err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow document is not valid YAML or JSON").WithCause(err)
	}
	if err := v.ValidateDocument(doc); err != nil {
		return nil, err
	}

	var wf schema.Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "failed to decode workflow document").WithCause(err)
	}
	return &wf, nil
}

// LoadWorkflowFile reads and parses a workflow document from disk.
func LoadWorkflowFile(path string) (*schema.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "cannot read workflow file %q", path).WithCause(err)
	}
	return ParseWorkflow(data)
}
