// Command rkvd is the daemon: it wires config -> clock -> keyspace -> AOF
// replay -> AOF writer -> scripting sandbox -> eviction engine -> TCP
// listener -> shutdown orchestrator -> optional Prometheus /metrics
// server, in that dependency order (spec.md §2 "Control flow", §4.11).
//
// Grounded on the teacher's cmd/bench/main.go for the overall
// flag-parsing-then-wire-everything-then-serve shape, and on
// examples/http_metrics/main.go (promhttp.Handler() on a net/http mux) for
// the metrics-server wiring.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/rkv/internal/aof"
	"github.com/IvanBrykalov/rkv/internal/clock"
	"github.com/IvanBrykalov/rkv/internal/config"
	"github.com/IvanBrykalov/rkv/internal/evictor"
	"github.com/IvanBrykalov/rkv/internal/executor"
	"github.com/IvanBrykalov/rkv/internal/keyspace"
	"github.com/IvanBrykalov/rkv/internal/metrics"
	"github.com/IvanBrykalov/rkv/internal/policy"
	"github.com/IvanBrykalov/rkv/internal/policy/lfu"
	"github.com/IvanBrykalov/rkv/internal/policy/lru"
	"github.com/IvanBrykalov/rkv/internal/policy/twoq"
	"github.com/IvanBrykalov/rkv/internal/script"
	"github.com/IvanBrykalov/rkv/internal/server"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 on clean shutdown, non-zero on
// bootstrap failure (bind error, AOF replay error), per spec.md §6.
func run() int {
	logger := config.NewLogger("rkvd: ")

	// -config is consumed in its own pre-pass (a plain argv scan, not a
	// second flag.FlagSet — the real FlagSet below already knows every
	// other flag name, and a FlagSet that only declares "-config" would
	// reject them) so its JSON values can seed the defaults every other
	// flag is registered against, matching SPEC_FULL.md §3's "-config
	// path.json ... individual fields can be overridden by flag values"
	// layering.
	base, err := config.Load(peekConfigFlag(os.Args[1:]))
	if err != nil {
		logger.Printf("bootstrap: %v", err)
		return 1
	}

	fs := flag.NewFlagSet("rkvd", flag.ContinueOnError)
	cfgPtr, _ := config.RegisterFlags(fs, base)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 1
	}
	cfg := *cfgPtr
	if err := cfg.Validate(); err != nil {
		logger.Printf("bootstrap: %v", err)
		return 1
	}

	clk := clock.New()
	polFactory := buildPolicy(cfg.EvictionPolicy, cfg.ShardsPerDB)
	ks := keyspace.New(cfg.ShardsPerDB, polFactory, clk)

	met := metrics.New(nil, "rkv", "server", nil)

	// --- AOF replay (cold start, before accepting connections) ---
	if err := replayAOF(cfg.AOFPath, ks, clk, logger); err != nil {
		logger.Printf("bootstrap: aof replay: %v", err)
		return 1
	}

	// --- AOF writer (live path) ---
	aofFile, err := os.OpenFile(cfg.AOFPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Printf("bootstrap: open aof for append: %v", err)
		return 1
	}
	defer aofFile.Close()
	writer := aof.NewWriter(aofFile, met.AOFQueueGauge())

	ex := executor.New(ks, clk, writer)
	sandbox := script.New(ks, clk, writer, cfg.ScriptWorkers)
	ex.SetScriptRunner(sandbox)

	// --- Eviction engine ---
	engine := evictor.New(ks, cfg.MemoryBudgetBytes,
		func(n int) { met.AddEvictTTL(n) },
		func(n int) { met.AddEvictMemory(n) },
	)

	// --- Listener ---
	ln, err := server.Listen(cfg.ListenAddr, ex, logger)
	if err != nil {
		logger.Printf("bootstrap: listen on %s: %v", cfg.ListenAddr, err)
		return 1
	}
	logger.Printf("listening on %s (policy=%s shards=%d budget=%d)", ln.Addr(), cfg.EvictionPolicy, cfg.ShardsPerDB, cfg.MemoryBudgetBytes)

	orch := server.NewOrchestrator(logger)
	go orch.ListenForSignals()

	// --- Clock updater (infra-shutdown, stopped last) ---
	clockDone := make(chan struct{})
	go func() {
		clk.Run(orch.InfraContext())
		close(clockDone)
	}()

	// --- Metrics refresh + optional /metrics server ---
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		httpSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Printf("metrics: serving at %s", cfg.MetricsAddr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("metrics: %v", err)
			}
		}()
		go func() {
			<-orch.AppDone()
			httpSrv.Close()
		}()
	}
	go runMetricsRefresh(orch, ks, met)

	// --- Eviction engine goroutine ---
	evictionDone := make(chan error, 1)
	go func() {
		evictionDone <- engine.Run(orch.AppContext(), clk.NowMillis)
	}()

	// --- AOF writer goroutine ---
	aofDone := make(chan struct{})
	go func() {
		writer.Run(orch.AppDone())
		close(aofDone)
	}()

	// --- Connection listener goroutine ---
	connDone := make(chan error, 1)
	go func() {
		connDone <- ln.Serve(orch.AppDone())
	}()

	orch.Run(connDone, evictionDone, aofDone, clockDone)
	logger.Printf("shutdown complete")
	return 0
}

// peekConfigFlag scans argv for "-config"/"--config" (either "=value" or a
// following argument) without engaging the full flag.FlagSet, which would
// otherwise reject every other flag name before it has been registered.
func peekConfigFlag(argv []string) string {
	for i, a := range argv {
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(argv) {
				return argv[i+1]
			}
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

func buildPolicy(name string, shardsPerDB int) policy.Policy {
	switch name {
	case "lfu":
		return lfu.New()
	case "2q":
		return twoq.New(shardsPerDB/4+1, shardsPerDB/2+1)
	default:
		return lru.New()
	}
}

func replayAOF(path string, ks *keyspace.Keyspace, clk clock.Source, logger *log.Logger) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		logger.Printf("aof: %s does not exist, starting with empty keyspace", path)
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	replayExecutor := executor.New(ks, clk, nil)
	if err := aof.Replay(f, replayExecutor); err != nil {
		return err
	}
	logger.Printf("aof: replay of %s complete", path)
	return nil
}

func runMetricsRefresh(orch *server.Orchestrator, ks *keyspace.Keyspace, met *metrics.Adapter) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-orch.AppDone():
			return
		case <-ticker.C:
			hits, misses := ks.GlobalHitsMisses()
			met.SetHitsMisses(hits, misses)
			total, _ := ks.GlobalMemoryUsed(-1)
			met.SetSize(ks.GlobalEntries(), total)
		}
	}
}
