// Command agentcore is a minimal demonstration wiring for the MTConnect
// observation/asset core: it reads SHDR-shaped lines from stdin, feeds
// them through the standard ingest pipeline (spec §4.5), and on EOF
// prints the current observations and the buffer's sequence window. It also serves
// Prometheus metrics, replacing the deleted cmd/aisnodeprofile demo
// binary's role as the module's thin executable entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtconnect/agent/asset"
	"github.com/mtconnect/agent/buffer"
	"github.com/mtconnect/agent/config"
	"github.com/mtconnect/agent/device"
	"github.com/mtconnect/agent/idgen"
	"github.com/mtconnect/agent/ingest"
	"github.com/mtconnect/agent/notify"
	"github.com/mtconnect/agent/pipeline"
	"github.com/mtconnect/agent/query"
	"github.com/mtconnect/agent/sink"
	"github.com/mtconnect/agent/stats"
	"github.com/mtconnect/agent/xlog"
)

func main() {
	metricsAddr := flag.String("metrics-addr", ":9095", "address to serve /metrics on")
	flag.Parse()

	log := xlog.New("agentcore")
	idgen.Init(uint64(os.Getpid()))

	cfg := config.NewOwner(config.Default())

	registry := prometheus.NewRegistry()
	metrics := stats.New(registry)

	buf := buffer.New(cfg.Get().BufferSizeExp, cfg.Get().CheckpointFrequency)
	buf.SetMetrics(metrics)
	assets, err := asset.New(cfg.Get().MaxAssets)
	if err != nil {
		log.Fatalf("opening asset store: %v", err)
	}
	assets.SetMetrics(metrics)
	defer assets.Close()

	signaler := notify.NewSignaler()
	snk := sink.New(buf, assets, signaler, metrics)
	svc := query.New(buf, assets)
	reg := newFixtureDeviceModel()

	pl := pipeline.Standard(cfg, buf, snk, metrics, log)
	log.Infof("buffer %s: pipeline %s stages: %v", buf.ID(), pl.ID(), pl.Stages())

	go serveMetrics(*metricsAddr, registry, log)

	exec := ingest.NewExecutor(pl, log)
	stdin := ingest.Source{Name: "stdin", Reader: os.Stdin, Items: reg}
	if err := exec.Run(context.Background(), []ingest.Source{stdin}); err != nil {
		log.Errorf("ingest stopped: %v", err)
	}

	dumpState(svc, log)
}

func serveMetrics(addr string, reg *prometheus.Registry, log *xlog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warningf("metrics server stopped: %v", err)
	}
}

func dumpState(svc *query.Service, log *xlog.Logger) {
	cp, err := svc.Current(nil, 0, false)
	if err != nil {
		log.Errorf("reading current checkpoint: %v", err)
		return
	}
	for _, obs := range cp.Observations() {
		fmt.Printf("%s\t%s\t%v\n", obs.DataItemID(), obs.Timestamp.Format("2006-01-02T15:04:05.000Z"), obs.Payload)
	}
	fmt.Printf("window: [%d, %d]\n", svc.FirstSequence(), svc.LastSequence())
}

// newFixtureDeviceModel builds the handful of data items this demo
// binary exercises. A real deployment constructs these from a device
// model loaded elsewhere; that loader is out of this core's scope.
func newFixtureDeviceModel() map[string]*device.DataItem {
	handle, _ := device.NewComponentHandle("controller")

	items := []*device.DataItem{
		{ID: "avail", Category: device.Event, Representation: device.Value, Component: handle},
		{ID: "mode", Category: device.Event, Representation: device.Value, Component: handle},
		{ID: "Xact", Category: device.Sample, Representation: device.Value,
			NativeUnits: "MILLIMETER", Units: "MILLIMETER", Component: handle},
		{ID: "cond1", Category: device.Condition, Representation: device.Value, Component: handle},
		{ID: "settings", Category: device.Event, Representation: device.DataSet, Component: handle},
		{ID: "workoffsets", Category: device.Event, Representation: device.Table, Component: handle},
	}
	reg := make(map[string]*device.DataItem, len(items))
	for _, it := range items {
		reg[it.ID] = it
	}
	return reg
}
