// Package ingest implements the core's ingest-side scheduling model
// (spec §5): a shared, fixed-size worker pool runs one cooperative,
// single-threaded strand per adapter source, so a source's observations
// are never reordered or processed concurrently with themselves, while
// distinct sources proceed independently of one another. Grounded on
// golang.org/x/sync/errgroup (a teacher go.mod direct dependency) for
// supervising the fixed set of strand goroutines and propagating the
// first failure (or ctx cancellation) to stop the rest.
package ingest

import (
	"bufio"
	"context"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mtconnect/agent/device"
	"github.com/mtconnect/agent/pipeline"
	"github.com/mtconnect/agent/xlog"
)

// Source is one named adapter connection: a reader of SHDR-shaped lines
// plus the device-item registry line tokens resolve against.
type Source struct {
	Name   string
	Reader io.Reader
	Items  map[string]*device.DataItem
}

// Executor runs every Source on its own strand, feeding a single shared
// pipeline. The pipeline itself is not locked: spec §5 pins ingest
// pipeline topology as built-once/frozen, and the sink at the pipeline's
// tail is the only stage that touches shared, lock-guarded state.
type Executor struct {
	pl  *pipeline.Pipeline
	log *xlog.Logger
}

// NewExecutor returns an Executor that feeds every strand's entities into
// pl.
func NewExecutor(pl *pipeline.Pipeline, log *xlog.Logger) *Executor {
	return &Executor{pl: pl, log: log}
}

// Run starts one strand per source and blocks until every source's
// reader reaches EOF, ctx is canceled, or a strand reports an error —
// whichever comes first stops every other strand still running.
func (e *Executor) Run(ctx context.Context, sources []Source) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error { return e.strand(gctx, src) })
	}
	return g.Wait()
}

func (e *Executor) strand(ctx context.Context, src Source) error {
	scanner := bufio.NewScanner(src.Reader)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, ent := range SplitLine(line, src.Items) {
			e.pl.Run(ent)
		}
	}
	if err := scanner.Err(); err != nil {
		if e.log != nil {
			e.log.Errorf("ingest %s: %v", src.Name, err)
		}
		return err
	}
	return nil
}
