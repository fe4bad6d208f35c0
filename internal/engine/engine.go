// Package engine orchestrates one patch-application cycle: fetch the
// manifest, diff it against local cache, and sequentially download and
// apply each unapplied patch, publishing status and progress events to
// a buffered single-producer channel (4096 slots; events published while
// it is full are dropped).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/APTlantis/grf-patcher/internal/cache"
	"github.com/APTlantis/grf-patcher/internal/config"
	"github.com/APTlantis/grf-patcher/internal/container"
	"github.com/APTlantis/grf-patcher/internal/download"
	"github.com/APTlantis/grf-patcher/internal/integrity"
	"github.com/APTlantis/grf-patcher/internal/manifest"
	"github.com/APTlantis/grf-patcher/internal/patchpkg"
)

// State names the engine's position in its update-cycle state machine.
type State string

const (
	StateIdle        State = "idle"
	StateChecking    State = "checking"
	StateDownloading State = "downloading"
	StatePatching    State = "patching"
	StateReady       State = "ready"
	StateError       State = "error"
)

// StatusEvent mirrors spec.md §6's status event schema.
type StatusEvent struct {
	Status   State
	Current  uint32
	Total    uint32
	Filename string
	Err      string
}

// ProgressEvent mirrors spec.md §6's progress event schema.
type ProgressEvent struct {
	Filename   string
	Downloaded int64
	Total      int64
	Speed      float64
	Percentage float64
}

// Metrics registered once per process; multiple Engines share them.
var (
	metricsOnce    sync.Once
	patchesApplied prometheus.Counter
	patchesFailed  prometheus.Counter
	cycleDuration  prometheus.Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		patchesApplied = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grf_patcher_patches_applied_total",
			Help: "Patches successfully applied across all update cycles.",
		})
		patchesFailed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grf_patcher_patches_failed_total",
			Help: "Patches that failed to apply.",
		})
		cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grf_patcher_cycle_duration_seconds",
			Help:    "Wall-clock duration of a full update cycle.",
			Buckets: prometheus.DefBuckets,
		})
		prometheus.MustRegister(patchesApplied, patchesFailed, cycleDuration)
	})
}

// StartMetricsServer exposes the package's Prometheus counters on addr
// at /metrics. A no-op when addr is empty. The listener runs in its own
// goroutine, so the call returns at once; listener errors are logged,
// not returned, since a metrics
// server failing never aborts an update cycle already in progress.
func StartMetricsServer(addr string) {
	if addr == "" {
		return
	}
	initMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "err", err)
		}
	}()
}

// Engine runs a strictly sequential update cycle: this spec explicitly
// excludes applying multiple patch packages concurrently.
type Engine struct {
	cfg        config.Config
	installDir string
	cachePath  string

	manifestClient *manifest.Client
	downloader     *download.Downloader
	cacheStore     *cache.Store

	events chan any // StatusEvent or ProgressEvent, single producer
}

// New constructs an Engine rooted at installDir, persisting cache state
// at cachePath. events is a 4096-slot buffered channel, not an unbounded
// one; the caller owns draining it.
func New(cfg config.Config, installDir, cachePath string) *Engine {
	initMetrics()
	return &Engine{
		cfg:            cfg,
		installDir:     installDir,
		cachePath:      cachePath,
		manifestClient: manifest.NewClient(),
		downloader:     download.New(6),
		cacheStore:     cache.NewStore(cachePath),
		events:         make(chan any, 4096), // large, effectively unbounded for one cycle's event volume
	}
}

// Events returns the channel status and progress events are published
// on. Delivery is best-effort: a full channel drops the event rather
// than block the engine, matching spec.md §5's "dropped events must not
// affect correctness" guarantee.
func (e *Engine) Events() <-chan any {
	return e.events
}

func (e *Engine) emitStatus(ev StatusEvent) {
	select {
	case e.events <- ev:
	default:
		slog.Warn("engine: status event dropped, channel full", "status", ev.Status)
	}
}

func (e *Engine) emitProgress(ev ProgressEvent) {
	select {
	case e.events <- ev:
	default:
	}
}

// Run executes one full update cycle. ctx cancellation transitions the
// engine back to Idle, discarding any partially-downloaded temp file;
// cancellation between patches leaves the cache reflecting completed
// patches, per spec.md §5.
func (e *Engine) Run(ctx context.Context) error {
	timer := prometheus.NewTimer(cycleDuration)
	defer timer.ObserveDuration()

	e.emitStatus(StatusEvent{Status: StateChecking})

	server, ok := e.cfg.Web.Resolve()
	if !ok {
		err := fmt.Errorf("engine: no patch server configured")
		e.emitStatus(StatusEvent{Status: StateError, Err: err.Error()})
		return err
	}

	records, err := e.manifestClient.Fetch(server.PListURL)
	if err != nil {
		e.emitStatus(StatusEvent{Status: StateError, Err: err.Error()})
		return fmt.Errorf("engine: fetch manifest: %w", err)
	}

	localCache, err := e.cacheStore.Load()
	if err != nil {
		e.emitStatus(StatusEvent{Status: StateError, Err: err.Error()})
		return fmt.Errorf("engine: load cache: %w", err)
	}

	var toApply []manifest.Record
	for _, rec := range records {
		if !localCache.HasInstalled(rec.Index) {
			toApply = append(toApply, rec)
		}
	}

	if len(toApply) == 0 {
		e.emitStatus(StatusEvent{Status: StateReady})
		return nil
	}

	for i, rec := range toApply {
		select {
		case <-ctx.Done():
			e.emitStatus(StatusEvent{Status: StateIdle})
			return ctx.Err()
		default:
		}

		current := uint32(i + 1)
		total := uint32(len(toApply))

		e.emitStatus(StatusEvent{Status: StateDownloading, Current: current, Total: total, Filename: rec.Filename})

		tmpPath := filepath.Join(os.TempDir(), "grf-patcher-"+rec.Filename)
		patchURL := server.PatchURL + "/" + rec.Filename

		err := e.downloader.Fetch(ctx, patchURL, tmpPath, func(p download.Progress) {
			e.emitProgress(ProgressEvent{
				Filename:   p.Filename,
				Downloaded: p.Downloaded,
				Total:      p.Total,
				Speed:      p.BytesPerS,
				Percentage: p.Percentage,
			})
		})
		if err != nil {
			if ctx.Err() != nil {
				e.emitStatus(StatusEvent{Status: StateIdle})
				return ctx.Err()
			}
			patchesFailed.Inc()
			e.emitStatus(StatusEvent{Status: StateError, Err: err.Error()})
			return fmt.Errorf("engine: download %s: %w", rec.Filename, err)
		}

		if e.cfg.Patching.CheckIntegrity && rec.Hash != "" {
			data, readErr := os.ReadFile(tmpPath)
			if readErr != nil {
				os.Remove(tmpPath)
				patchesFailed.Inc()
				e.emitStatus(StatusEvent{Status: StateError, Err: readErr.Error()})
				return fmt.Errorf("engine: read downloaded patch: %w", readErr)
			}
			if verifyErr := integrity.Verify(rec.Hash, data); verifyErr != nil {
				os.Remove(tmpPath)
				patchesFailed.Inc()
				e.emitStatus(StatusEvent{Status: StateError, Err: verifyErr.Error()})
				return fmt.Errorf("engine: verify %s: %w", rec.Filename, verifyErr)
			}
		}

		e.emitStatus(StatusEvent{Status: StatePatching, Current: current, Total: total, Filename: rec.Filename})

		targetContainerName := rec.TargetContainer
		if targetContainerName == "" {
			targetContainerName = e.cfg.Client.DefaultContainerName
		}
		containerPath := filepath.Join(e.installDir, targetContainerName)

		if e.cfg.Patching.CreateContainer {
			if _, statErr := os.Stat(containerPath); os.IsNotExist(statErr) {
				if err := container.Create(containerPath); err != nil {
					patchesFailed.Inc()
					e.emitStatus(StatusEvent{Status: StateError, Err: err.Error()})
					return fmt.Errorf("engine: create container %s: %w", targetContainerName, err)
				}
			}
		}

		_, statErr := os.Stat(containerPath)
		containerExists := statErr == nil

		if err := e.applyPatch(tmpPath, containerPath, containerExists, rec.ForceExtract); err != nil {
			os.Remove(tmpPath)
			patchesFailed.Inc()
			e.emitStatus(StatusEvent{Status: StateError, Err: err.Error()})
			return fmt.Errorf("engine: apply %s: %w", rec.Filename, err)
		}

		os.Remove(tmpPath)

		if err := e.cacheStore.Update(func(c *cache.LocalCache) error {
			c.MarkInstalled(rec.Index)
			return nil
		}); err != nil {
			e.emitStatus(StatusEvent{Status: StateError, Err: err.Error()})
			return fmt.Errorf("engine: persist cache after patch %d: %w", rec.Index, err)
		}

		patchesApplied.Inc()
	}

	e.emitStatus(StatusEvent{Status: StateReady})
	return nil
}

// applyPatch parses one downloaded patch package and applies its ops:
// loose files go straight to disk, container-bound upserts/deletes are
// buffered and committed in a single quick_merge call.
func (e *Engine) applyPatch(patchPath, containerPath string, containerExists, forceExtract bool) error {
	ops, err := patchpkg.Open(patchPath, containerExists, forceExtract)
	if err != nil {
		return fmt.Errorf("parse package: %w", err)
	}

	containerPayloads := map[string][]byte{}
	var containerDeletions []string

	for _, op := range ops {
		switch op.Disposition {
		case patchpkg.InsideContainer:
			switch op.Kind {
			case patchpkg.OpUpsert:
				containerPayloads[op.Path] = op.Data
			case patchpkg.OpDelete:
				containerDeletions = append(containerDeletions, op.Path)
			}
		default: // OnFilesystem
			switch op.Kind {
			case patchpkg.OpUpsert:
				if err := writeLooseFile(e.installDir, op.Path, op.Data); err != nil {
					return err
				}
			case patchpkg.OpDelete:
				_ = os.Remove(filepath.Join(e.installDir, filepath.FromSlash(op.Path))) // best-effort, per spec.md §4.6
			}
		}
	}

	if len(containerPayloads) == 0 && len(containerDeletions) == 0 {
		return nil
	}

	// containerExists must already be true here: disposition() only routes
	// an op InsideContainer when the container existed at Open time, and
	// Run creates it up front (create_grf) before computing that flag.
	header, err := container.ReadHeader(containerPath)
	if err != nil {
		return fmt.Errorf("read container header: %w", err)
	}
	table, err := container.ReadTable(containerPath, header)
	if err != nil {
		return fmt.Errorf("read container table: %w", err)
	}

	if err := container.QuickMerge(containerPath, header, table, containerPayloads, containerDeletions); err != nil {
		return fmt.Errorf("quick merge: %w", err)
	}
	return nil
}

func writeLooseFile(installDir, relPath string, data []byte) error {
	dest := filepath.Join(installDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", relPath, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	return nil
}
