package mcp

import (
	"sort"
	"sync"

	"github.com/parley-sh/parley/internal/engine"
	"github.com/parley-sh/parley/pkg/schema"
)

// LibraryEntry is the listing view of a registered workflow.
type LibraryEntry struct {
	Name    string `json:"name"`
	Initial string `json:"initial"`
	States  int    `json:"states"`
}

// workflowLibrary is the in-memory registry of named workflow definitions.
// Definitions are validated before they are admitted, so a run never sees a
// structurally broken graph from the library.
type workflowLibrary struct {
	mu        sync.RWMutex
	workflows map[string]*schema.Workflow
}

func newWorkflowLibrary() *workflowLibrary {
	return &workflowLibrary{workflows: make(map[string]*schema.Workflow)}
}

// Define registers a workflow under the given name, replacing any previous
// definition with that name.
func (l *workflowLibrary) Define(name string, wf *schema.Workflow) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow name is empty")
	}
	if err := engine.ValidateWorkflow(wf); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.workflows[name] = wf
	return nil
}

// Get returns a registered workflow by name.
func (l *workflowLibrary) Get(name string) (*schema.Workflow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	wf, ok := l.workflows[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no workflow %q in library", name)
	}
	return wf, nil
}

// List returns all registered workflows, sorted by name.
func (l *workflowLibrary) List() []LibraryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]LibraryEntry, 0, len(l.workflows))
	for name, wf := range l.workflows {
		out = append(out, LibraryEntry{Name: name, Initial: wf.Initial, States: len(wf.States)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
