package pipeline

import (
	"github.com/mtconnect/agent/coreerr"
	"github.com/mtconnect/agent/idgen"
)

// Pipeline is an ordered chain of named transforms. Topology is frozen
// at steady state (spec §5): edits happen only through the splice
// operations below, with ingest quiesced by the caller.
type Pipeline struct {
	id     string
	stages []Transform
}

// New builds a pipeline from stages in order.
func New(stages ...Transform) *Pipeline {
	return &Pipeline{id: idgen.NewOrEmpty(), stages: append([]Transform(nil), stages...)}
}

// ID is this pipeline instance's generated identifier, useful for log
// lines distinguishing multiple pipelines (e.g. one per adapter
// connection) in the same process.
func (p *Pipeline) ID() string { return p.id }

// Run pushes e through every stage in order. A stage whose guard
// rejects e forwards it unchanged; a stage that returns keep=false stops
// the walk and Run returns nil.
func (p *Pipeline) Run(e *Entity) *Entity {
	for _, stage := range p.stages {
		if !stage.Guard()(e) {
			continue
		}
		next, keep := stage.Apply(e)
		if !keep {
			return nil
		}
		e = next
	}
	return e
}

func (p *Pipeline) indexOf(name string) int {
	for i, s := range p.stages {
		if s.Name() == name {
			return i
		}
	}
	return -1
}

// SpliceBefore inserts t immediately before the stage named name.
func (p *Pipeline) SpliceBefore(name string, t Transform) error {
	i := p.indexOf(name)
	if i < 0 {
		return coreerr.Property("pipeline: no stage named %q", name)
	}
	p.insertAt(i, t)
	return nil
}

// SpliceAfter inserts t immediately after the stage named name.
func (p *Pipeline) SpliceAfter(name string, t Transform) error {
	i := p.indexOf(name)
	if i < 0 {
		return coreerr.Property("pipeline: no stage named %q", name)
	}
	p.insertAt(i+1, t)
	return nil
}

// FirstAfter replaces the entire tail after the stage named name with t
// as the new terminal.
func (p *Pipeline) FirstAfter(name string, t Transform) error {
	i := p.indexOf(name)
	if i < 0 {
		return coreerr.Property("pipeline: no stage named %q", name)
	}
	p.stages = append(p.stages[:i+1], t)
	return nil
}

// LastAfter appends t as the new terminal after any existing tail.
func (p *Pipeline) LastAfter(name string, t Transform) error {
	i := p.indexOf(name)
	if i < 0 {
		return coreerr.Property("pipeline: no stage named %q", name)
	}
	p.stages = append(p.stages, t)
	return nil
}

func (p *Pipeline) insertAt(i int, t Transform) {
	p.stages = append(p.stages, nil)
	copy(p.stages[i+1:], p.stages[i:])
	p.stages[i] = t
}

// Stages returns the current stage names in order, for introspection and
// tests.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}
