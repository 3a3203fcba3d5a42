// Package diagram renders workflow graphs as Mermaid flowcharts, for docs and
// for eyeballing a definition before running it.
package diagram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/parley-sh/parley/pkg/schema"
)

// RenderMermaid renders a workflow as a Mermaid flowchart string. Output is
// deterministic: states and edge triggers are emitted in sorted order.
func RenderMermaid(wf *schema.Workflow) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if wf.Name != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", wf.Name))
	}

	ids := make([]string, 0, len(wf.States))
	for id := range wf.States {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	b.WriteString(fmt.Sprintf("    __start((start)) --> %s\n", safeID(wf.Initial)))
	for _, id := range ids {
		b.WriteString(fmt.Sprintf("    %s\n", nodeDef(id, wf.States[id])))
	}
	for _, id := range ids {
		for _, e := range stateEdges(id, wf.States[id]) {
			b.WriteString("    " + e + "\n")
		}
	}

	return b.String()
}

// nodeDef returns a node definition shaped by the state's kind.
func nodeDef(id string, st *schema.State) string {
	sid := safeID(id)
	switch st.Type {
	case schema.StateTypeConditional:
		return fmt.Sprintf("%s{%q}", sid, id)
	case schema.StateTypeElicitation:
		return fmt.Sprintf("%s([%q])", sid, id)
	case schema.StateTypeSampling:
		return fmt.Sprintf("%s{{%q}}", sid, id)
	case schema.StateTypeParallel, schema.StateTypeLoop:
		return fmt.Sprintf("%s[[%q]]", sid, id)
	default: // response, tool
		return fmt.Sprintf("%s[%q]", sid, id)
	}
}

// stateEdges returns the outgoing edges for one state, sorted by trigger.
func stateEdges(id string, st *schema.State) []string {
	var edges []string

	switch st.Type {
	case schema.StateTypeConditional:
		if st.OnTrue != "" {
			edges = append(edges, edge(id, st.OnTrue, "true"))
		}
		if st.OnFalse != "" {
			edges = append(edges, edge(id, st.OnFalse, "false"))
		}
	case schema.StateTypeParallel:
		for _, branch := range st.Branches {
			edges = append(edges, edge(id, branch, "branch"))
		}
	case schema.StateTypeLoop:
		if st.Body != "" {
			edges = append(edges, edge(id, st.Body, "body"))
		}
	}

	triggers := make([]string, 0, len(st.Transitions))
	for trigger := range st.Transitions {
		triggers = append(triggers, trigger)
	}
	sort.Strings(triggers)
	for _, trigger := range triggers {
		edges = append(edges, edge(id, st.Transitions[trigger], trigger))
	}
	return edges
}

func edge(from, to, label string) string {
	if label == "" {
		return fmt.Sprintf("%s --> %s", safeID(from), safeID(to))
	}
	// Pipes delimit Mermaid edge labels.
	label = strings.ReplaceAll(label, "|", "\\|")
	return fmt.Sprintf("%s -->|%s| %s", safeID(from), label, safeID(to))
}

// safeID converts a state id to a Mermaid-safe identifier.
func safeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", "/", "_", "*", "any")
	return r.Replace(id)
}
