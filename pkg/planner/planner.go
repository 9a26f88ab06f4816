// Package planner resolves a runbook file into a validated execution
// plan: a dependency DAG plus effective input and output schemas for
// every artifact.
package planner

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/waivern/wct/pkg/component"
	"github.com/waivern/wct/pkg/dag"
	"github.com/waivern/wct/pkg/runbook"
	"github.com/waivern/wct/pkg/schema"
)

// ErrPlanning marks any failure to turn a runbook into a plan.
var ErrPlanning = errors.New("planning failed")

// Kind classifies how a plan node produces its artifact.
type Kind int

const (
	// KindSource nodes run a connector.
	KindSource Kind = iota
	// KindProcess nodes run a processor over their inputs.
	KindProcess
	// KindAlias nodes copy the message of an inlined child-runbook
	// output.
	KindAlias
)

// Node is the resolved production recipe for one artifact.
type Node struct {
	ID        string
	Kind      Kind
	Component *runbook.Component // connector or processor config
	InputIDs  []string           // dependency artifact ids, declaration order
	AliasOf   string             // for KindAlias
	Merge     string
	Optional  bool
	Output    bool

	// Origin is "parent" for artifacts declared in the root runbook and
	// "child" for inlined child-runbook artifacts. Alias carries the
	// child-relative artifact id for child-origin nodes.
	Origin string
	Alias  string

	// InputSchema is nil for source artifacts.
	InputSchema  *schema.Schema
	OutputSchema schema.Schema
}

// Plan is a validated runbook together with its DAG and resolved
// schemas.
type Plan struct {
	Runbook *runbook.Runbook
	Path    string
	Hash    string
	DAG     *dag.DAG
	Nodes   map[string]*Node
}

// OutputIDs returns the ids of artifacts marked output=true, sorted.
func (p *Plan) OutputIDs() []string {
	var ids []string
	for id, n := range p.Nodes {
		if n.Output {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Planner builds plans against a component registry and schema
// registry.
type Planner struct {
	components *component.Registry
	schemas    *schema.Registry
}

// New returns a planner.
func New(components *component.Registry, schemas *schema.Registry) *Planner {
	return &Planner{components: components, schemas: schemas}
}

// Plan loads, validates, and resolves the runbook at path.
func (p *Planner) Plan(path string) (*Plan, error) {
	rb, err := runbook.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}
	hash, err := HashFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}

	plan := &Plan{
		Runbook: rb,
		Path:    path,
		Hash:    hash,
		DAG:     dag.New(),
		Nodes:   make(map[string]*Node),
	}
	if err := p.inline(plan, rb, path, "", nil, rb.Config.ChildDepth()); err != nil {
		return nil, err
	}
	if err := plan.DAG.Validate(); err != nil {
		var cyc *dag.CycleError
		if errors.As(err, &cyc) {
			return nil, fmt.Errorf("%w: %w", ErrPlanning, cyc)
		}
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}
	if err := p.resolveSchemas(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// inline adds rb's artifacts to the plan under the given id prefix.
// inputBinding maps child input names to parent artifact ids; it is
// nil for the root runbook.
func (p *Planner) inline(plan *Plan, rb *runbook.Runbook, path, prefix string, inputBinding map[string]string, depthBudget int) error {
	origin := "parent"
	if prefix != "" {
		origin = "child"
	}

	for _, id := range rb.ArtifactIDs() {
		art := rb.Artifacts[id]
		nodeID := namespaced(prefix, id)

		switch {
		case art.Source != nil:
			if err := p.checkComponent(art.Source, nodeID); err != nil {
				return err
			}
			plan.DAG.AddNode(nodeID)
			plan.Nodes[nodeID] = &Node{
				ID:        nodeID,
				Kind:      KindSource,
				Component: art.Source,
				Optional:  art.Optional,
				Output:    art.Output && prefix == "",
				Origin:    origin,
				Alias:     childAlias(prefix, id),
			}

		case len(art.Inputs) > 0:
			if err := p.checkComponent(art.Process, nodeID); err != nil {
				return err
			}
			inputIDs := make([]string, 0, len(art.Inputs))
			for _, ref := range art.Inputs {
				resolved, err := resolveRef(rb, ref, prefix, inputBinding)
				if err != nil {
					return fmt.Errorf("%w: artifact %q: %v", ErrPlanning, nodeID, err)
				}
				inputIDs = append(inputIDs, resolved)
			}
			if len(inputIDs) > 1 && art.Merge != runbook.MergeConcatenate {
				return fmt.Errorf("%w: artifact %q has multiple inputs but no merge policy", ErrPlanning, nodeID)
			}
			plan.DAG.AddNode(nodeID)
			for _, in := range inputIDs {
				plan.DAG.AddEdge(in, nodeID)
			}
			plan.Nodes[nodeID] = &Node{
				ID:        nodeID,
				Kind:      KindProcess,
				Component: art.Process,
				InputIDs:  inputIDs,
				Merge:     art.Merge,
				Optional:  art.Optional,
				Output:    art.Output && prefix == "",
				Origin:    origin,
				Alias:     childAlias(prefix, id),
			}

		case art.ChildRunbook != nil:
			if err := p.inlineChild(plan, rb, art, path, nodeID, inputBinding, depthBudget); err != nil {
				return err
			}
		}

		if n, ok := plan.Nodes[nodeID]; ok && art.OutputSchema != "" {
			override, err := parseSchemaRef(art.OutputSchema)
			if err != nil {
				return fmt.Errorf("%w: artifact %q: %v", ErrPlanning, nodeID, err)
			}
			n.OutputSchema = override
		}
	}
	return nil
}

func (p *Planner) inlineChild(plan *Plan, parent *runbook.Runbook, art *runbook.Artifact, parentPath, nodeID string, parentBinding map[string]string, depthBudget int) error {
	if depthBudget <= 0 {
		return fmt.Errorf("%w: artifact %q exceeds max child runbook depth", ErrPlanning, nodeID)
	}
	c := art.ChildRunbook
	childPath := c.Path
	if !filepath.IsAbs(childPath) {
		childPath = filepath.Join(filepath.Dir(parentPath), childPath)
	}
	child, err := runbook.Load(childPath)
	if err != nil {
		return fmt.Errorf("%w: child runbook %q: %v", ErrPlanning, c.Path, err)
	}

	// Bind declared child inputs to parent artifacts.
	binding := make(map[string]string, len(c.InputMapping))
	for name, parentRef := range c.InputMapping {
		if _, declared := child.Inputs[name]; !declared {
			return fmt.Errorf("%w: artifact %q maps undeclared child input %q", ErrPlanning, nodeID, name)
		}
		resolved, err := resolveRef(parent, parentRef, parentPrefix(nodeID), parentBinding)
		if err != nil {
			return fmt.Errorf("%w: artifact %q input_mapping: %v", ErrPlanning, nodeID, err)
		}
		binding[name] = resolved
	}
	for name, decl := range child.Inputs {
		if _, mapped := binding[name]; !mapped && !decl.Optional {
			return fmt.Errorf("%w: artifact %q missing mapping for required child input %q", ErrPlanning, nodeID, name)
		}
	}

	if err := p.inline(plan, child, childPath, nodeID, binding, depthBudget-1); err != nil {
		return err
	}

	// Expose child outputs as alias nodes in the parent namespace.
	addAlias := func(aliasID, childOutputName string) error {
		out, ok := child.Outputs[childOutputName]
		if !ok {
			return fmt.Errorf("%w: artifact %q references undeclared child output %q", ErrPlanning, aliasID, childOutputName)
		}
		target := namespaced(nodeID, out.Artifact)
		if _, ok := plan.Nodes[target]; !ok {
			return fmt.Errorf("%w: child output %q references missing artifact %q", ErrPlanning, childOutputName, out.Artifact)
		}
		plan.DAG.AddNode(aliasID)
		plan.DAG.AddEdge(target, aliasID)
		plan.Nodes[aliasID] = &Node{
			ID:       aliasID,
			Kind:     KindAlias,
			AliasOf:  target,
			InputIDs: []string{target},
			Optional: art.Optional,
			Output:   art.Output,
			Origin:   "child",
			Alias:    out.Artifact,
		}
		return nil
	}

	if c.Output != "" {
		if err := addAlias(nodeID, c.Output); err != nil {
			return err
		}
	}
	for childOutputName, parentID := range c.OutputMapping {
		if err := addAlias(namespaced(parentPrefix(nodeID), parentID), childOutputName); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) checkComponent(cfg *runbook.Component, nodeID string) error {
	f, err := p.components.Lookup(cfg.Type)
	if err != nil {
		return fmt.Errorf("%w: artifact %q: %v", ErrPlanning, nodeID, err)
	}
	if err := f.CanCreate(cfg.Properties); err != nil {
		return fmt.Errorf("%w: artifact %q: %v", ErrPlanning, nodeID, err)
	}
	return nil
}

// resolveSchemas walks the plan in topological order, assigning each
// node its effective input and output schema and validating schema
// membership at every edge.
func (p *Planner) resolveSchemas(plan *Plan) error {
	sorter := plan.DAG.Sorter()
	for sorter.IsActive() {
		ready := sorter.Ready()
		if len(ready) == 0 {
			break
		}
		for _, id := range ready {
			n, ok := plan.Nodes[id]
			if !ok {
				return fmt.Errorf("%w: artifact %q is referenced but never produced", ErrPlanning, id)
			}
			if err := p.resolveNode(plan, n); err != nil {
				return err
			}
			if err := sorter.Done(id); err != nil {
				return fmt.Errorf("%w: %v", ErrPlanning, err)
			}
		}
	}
	return nil
}

func (p *Planner) resolveNode(plan *Plan, n *Node) error {
	switch n.Kind {
	case KindAlias:
		n.OutputSchema = plan.Nodes[n.AliasOf].OutputSchema
		in := plan.Nodes[n.AliasOf].OutputSchema
		n.InputSchema = &in
		return nil

	case KindSource:
		if !n.OutputSchema.IsZero() {
			return p.checkKnown(n.ID, n.OutputSchema)
		}
		f, err := p.components.Lookup(n.Component.Type)
		if err != nil {
			return fmt.Errorf("%w: artifact %q: %v", ErrPlanning, n.ID, err)
		}
		outs := f.OutputSchemas()
		if len(outs) == 0 {
			return fmt.Errorf("%w: artifact %q: component %q declares no output schema", ErrPlanning, n.ID, n.Component.Type)
		}
		n.OutputSchema = outs[0]
		return nil

	case KindProcess:
		f, err := p.components.Lookup(n.Component.Type)
		if err != nil {
			return fmt.Errorf("%w: artifact %q: %v", ErrPlanning, n.ID, err)
		}
		// All fan-in inputs must share one schema identity.
		upstream := plan.Nodes[n.InputIDs[0]].OutputSchema
		for _, in := range n.InputIDs[1:] {
			other := plan.Nodes[in].OutputSchema
			if other != upstream {
				return fmt.Errorf("%w: artifact %q: fan-in inputs disagree on schema (%s vs %s)", ErrPlanning, n.ID, upstream, other)
			}
		}
		accepted := false
		for _, s := range f.InputSchemas() {
			if s == upstream {
				accepted = true
				break
			}
		}
		if !accepted {
			return fmt.Errorf("%w: artifact %q: component %q does not accept input schema %s", ErrPlanning, n.ID, n.Component.Type, upstream)
		}
		n.InputSchema = &upstream

		if n.OutputSchema.IsZero() {
			outs := f.OutputSchemas()
			if len(outs) == 0 {
				return fmt.Errorf("%w: artifact %q: component %q declares no output schema", ErrPlanning, n.ID, n.Component.Type)
			}
			n.OutputSchema = outs[0]
		}
		return p.checkKnown(n.ID, n.OutputSchema)
	}
	return nil
}

func (p *Planner) checkKnown(nodeID string, s schema.Schema) error {
	if !p.schemas.Has(s) {
		return fmt.Errorf("%w: artifact %q: schema %s is not registered", ErrPlanning, nodeID, s)
	}
	return nil
}

// resolveRef maps an artifact input reference to a plan node id. A
// reference is either an artifact in the same runbook (namespaced by
// prefix) or, inside a child runbook, a declared input name bound to a
// parent artifact.
func resolveRef(rb *runbook.Runbook, ref, prefix string, inputBinding map[string]string) (string, error) {
	if _, ok := rb.Artifacts[ref]; ok {
		return namespaced(prefix, ref), nil
	}
	if bound, ok := inputBinding[ref]; ok {
		return bound, nil
	}
	if _, declared := rb.Inputs[ref]; declared {
		return "", fmt.Errorf("input %q declared but not bound", ref)
	}
	return "", fmt.Errorf("unknown input reference %q", ref)
}

func namespaced(prefix, id string) string {
	if prefix == "" {
		return id
	}
	return prefix + "/" + id
}

// parentPrefix returns the namespace a node id lives in.
func parentPrefix(nodeID string) string {
	if i := strings.LastIndex(nodeID, "/"); i >= 0 {
		return nodeID[:i]
	}
	return ""
}

func childAlias(prefix, id string) string {
	if prefix == "" {
		return ""
	}
	return id
}

// parseSchemaRef parses "name/version" (or bare "name", implying
// version 1.0.0) into a schema identity.
func parseSchemaRef(ref string) (schema.Schema, error) {
	parts := strings.Split(ref, "/")
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return schema.Schema{}, fmt.Errorf("empty schema reference")
		}
		return schema.New(parts[0], "1.0.0"), nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return schema.Schema{}, fmt.Errorf("invalid schema reference %q", ref)
		}
		return schema.New(parts[0], parts[1]), nil
	default:
		return schema.Schema{}, fmt.Errorf("invalid schema reference %q", ref)
	}
}
