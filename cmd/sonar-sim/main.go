package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"

	"sonar-sim-go/internal/config"
	"sonar-sim-go/internal/geomsource"
	"sonar-sim-go/internal/ingest"
	"sonar-sim-go/internal/logging"
	"sonar-sim-go/internal/output"
	"sonar-sim-go/internal/processing"
	"sonar-sim-go/internal/scheduler"
	"sonar-sim-go/internal/server"
	"sonar-sim-go/internal/simulator"
	"sonar-sim-go/internal/sonar"
	"sonar-sim-go/internal/types"
)

type metrics struct {
	framesRendered   atomic.Uint64
	framesPublished  atomic.Uint64
	publishErrors    atomic.Uint64
	rawLogErrors     atomic.Uint64
	framesBroadcast  atomic.Uint64
	outputWriteOK    atomic.Uint64
	outputWriteError atomic.Uint64
	reconfigurations atomic.Uint64
	reconfigureError atomic.Uint64
	renderNanos      atomic.Uint64
	writeNanos       atomic.Uint64
}

func (m *metrics) snapshot() map[string]any {
	return map[string]any{
		"frames_rendered_total":  m.framesRendered.Load(),
		"frames_published_total": m.framesPublished.Load(),
		"publish_err_total":      m.publishErrors.Load(),
		"raw_log_err_total":      m.rawLogErrors.Load(),
		"frames_broadcast_total": m.framesBroadcast.Load(),
		"output_write_ok_total":  m.outputWriteOK.Load(),
		"output_write_err_total": m.outputWriteError.Load(),
		"reconfigurations_total": m.reconfigurations.Load(),
		"reconfigure_err_total":  m.reconfigureError.Load(),
		"render_nanos_last":      m.renderNanos.Load(),
		"write_nanos_total":      m.writeNanos.Load(),
	}
}

// state is what the HTTP side may read while the render loop runs.
type state struct {
	mu       sync.Mutex
	geometry types.ScanGeometry
	agg      *processing.Aggregator
	latest   *types.UISnapshot
	sensor   string
}

func main() {
	var (
		port             = flag.Int("port", 8888, "HTTP port for the web UI")
		workers          = flag.Int("workers", 4, "Number of rows rendered in parallel")
		frameRate        = flag.Float64("rate", 10.0, "Simulated scan rate (frames/sec)")
		maxFailures      = flag.Int("max-failures", 0, "Stop after this many failed frames in a row (0 = never)")
		geometryFile     = flag.String("geometry", "", "YAML file with a laser: or geometry: section")
		geometryURL      = flag.String("geometry-url", "", "Base URL polled for geometry updates")
		geometryVersion  = flag.String("geometry-api-version", "1.0", "API version of the geometry service")
		geometryInterval = flag.Duration("geometry-interval", 2*time.Second, "Polling interval for geometry updates")
		spinRate         = flag.Float64("spin", 0, "Sensor yaw rate (rad/sec)")
		uiRate           = flag.Duration("ui-rate", 1*time.Second, "UI update interval for websocket clients")
		outputDir        = flag.String("output-dir", "output", "Directory for scan CSV files")
		writeEvery       = flag.Int("write-every", 0, "Write every Nth scan as CSV (0 = never)")
		rawLogEnabled    = flag.Bool("raw-log", false, "Write encoded scans to disk")
		rawLogDir        = flag.String("raw-log-dir", "rawlog", "Directory for raw scan logs")
		publishEndpoint  = flag.String("publish", "", "ZMQ PUSH endpoint for encoded scans, e.g. tcp://*:31001")
		logEvery         = flag.Int("log-every", 100, "Log every Nth repeated error")
		debug            = flag.Bool("debug", false, "Debug logging")
	)
	flag.Parse()

	logger := logging.NewLogger("sonar-sim", *debug)
	defer func() { _ = logger.Sync() }()

	geometry := config.DefaultGeometry()
	if *geometryFile != "" {
		loaded, err := config.LoadGeometry(*geometryFile)
		if err != nil {
			logger.Fatalw("failed to load geometry", "path", *geometryFile, "error", err)
		}
		geometry = loaded
	}

	cfg := config.AppConfig{
		Port:               *port,
		Workers:            *workers,
		FrameRate:          *frameRate,
		MaxFailures:        *maxFailures,
		Geometry:           geometry,
		GeometryFile:       *geometryFile,
		GeometryURL:        *geometryURL,
		GeometryAPIVersion: *geometryVersion,
		GeometryInterval:   *geometryInterval,
		SpinRate:           *spinRate,
		UIRate:             *uiRate,
		OutputDir:          *outputDir,
		WriteEvery:         *writeEvery,
		RawLogEnabled:      *rawLogEnabled,
		RawLogDir:          *rawLogDir,
		PublishEndpoint:    *publishEndpoint,
		LogEvery:           *logEvery,
		Debug:              *debug,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := simulator.NewBackend(simulator.DefaultScene(), cfg.Workers)
	sensor := sonar.New(backend, sonar.WithLogger(logger.Named("sensor")))
	if err := sensor.Configure(cfg.Geometry); err != nil {
		logger.Fatalw("failed to configure sensor", "error", err)
	}
	defer func() {
		if err := sensor.Close(); err != nil {
			logger.Warnw("sensor close failed", "error", err)
		}
	}()

	var m metrics
	applied, _ := sensor.Geometry()
	st := &state{
		geometry: applied,
		agg:      processing.NewAggregator(applied.RangeCountWidth, applied.RangeCountHeight, cfg.WriteEvery),
		sensor:   sensor.State().String(),
	}

	var publisher *ingest.Publisher
	if cfg.PublishEndpoint != "" {
		p, err := ingest.NewPublisher(cfg.PublishEndpoint, logger.Named("publish"), cfg.LogEvery)
		if err != nil {
			logger.Fatalw("failed to start publisher", "endpoint", cfg.PublishEndpoint, "error", err)
		}
		publisher = p
		defer func() { _ = publisher.Close() }()
		if err := publisher.PublishGeometry(applied); err != nil {
			logger.Warnw("publish geometry failed", "error", err)
		}
	}

	var rawLog *output.RawLogWriter
	if cfg.RawLogEnabled {
		w, err := output.NewRawLogWriter(cfg.RawLogDir, "scan_cbor")
		if err != nil {
			logger.Fatalw("failed to start raw log", "error", err)
		}
		rawLog = w
		logger.Infow("raw log enabled", "path", rawLog.Path())
		defer func() {
			if err := rawLog.Close(); err != nil {
				logger.Warnw("raw log close failed", "error", err)
			}
		}()
	}

	// Encoded copies of every rendered scan go to the wire and the raw log.
	// They carry the sequence and sim time of the frame RenderFrame returned.
	publishLog := logging.EveryN{N: cfg.LogEvery}
	publishScan := func(frame types.ScanFrame) {
		if publisher == nil && rawLog == nil {
			return
		}
		payload, err := ingest.EncodeScan(frame)
		if err != nil {
			publishLog.Warnw(logger, "encode scan failed", "error", err)
			return
		}
		if rawLog != nil {
			if err := rawLog.Record(payload); err != nil {
				m.rawLogErrors.Add(1)
				publishLog.Warnw(logger, "raw log write failed", "error", err)
			}
		}
		if publisher != nil {
			if err := publisher.PublishRaw(payload); err != nil {
				m.publishErrors.Add(1)
				publishLog.Warnw(logger, "publish failed", "error", err)
				return
			}
			m.framesPublished.Add(1)
		}
	}

	geometryUpdates := make(chan types.ScanGeometry, 1)
	var updateMu sync.Mutex
	setGeometry := func(g types.ScanGeometry) error {
		if err := g.Validate(); err != nil {
			return err
		}
		updateMu.Lock()
		defer updateMu.Unlock()
		// only the newest pending geometry matters
		select {
		case <-geometryUpdates:
		default:
		}
		geometryUpdates <- g
		return nil
	}

	runTimestamp := processing.Timestamp()
	start := time.Now()
	tick := func(ctx context.Context) error {
		select {
		case g := <-geometryUpdates:
			if err := sensor.Configure(g); err != nil {
				m.reconfigureError.Add(1)
				logger.Warnw("geometry rejected, keeping previous", "error", err)
			} else {
				m.reconfigurations.Add(1)
				next, _ := sensor.Geometry()
				st.mu.Lock()
				st.geometry = next
				st.agg = processing.NewAggregator(next.RangeCountWidth, next.RangeCountHeight, cfg.WriteEvery)
				st.latest = nil
				st.mu.Unlock()
				if publisher != nil {
					if err := publisher.PublishGeometry(next); err != nil {
						logger.Warnw("publish geometry failed", "error", err)
					}
				}
			}
		default:
		}

		if cfg.SpinRate != 0 {
			sensor.SetPose(sonar.Pose{
				Position: r3.Vector{},
				Heading:  cfg.SpinRate * time.Since(start).Seconds(),
			})
		}

		frame, err := sensor.RenderFrame(ctx)
		st.mu.Lock()
		st.sensor = sensor.State().String()
		st.mu.Unlock()
		if err != nil {
			return err
		}
		m.framesRendered.Add(1)
		m.renderNanos.Store(uint64(sensor.LastRenderDuration().Nanoseconds()))
		publishScan(frame)

		st.mu.Lock()
		due := st.agg.AddFrame(frame) && cfg.WriteEvery > 0
		var data map[string]*processing.ChannelData
		if due {
			data = st.agg.Snapshot()
		}
		st.mu.Unlock()

		if due {
			writeStart := time.Now()
			path, err := output.WriteScan(cfg.OutputDir, runTimestamp, frame.Sequence, sensor.Mesh(), data)
			m.writeNanos.Add(uint64(time.Since(writeStart).Nanoseconds()))
			if err != nil {
				m.outputWriteError.Add(1)
				logger.Warnw("scan write failed", "error", err)
			} else {
				m.outputWriteOK.Add(1)
				logger.Debugw("scan written", "path", path)
			}
		}
		return nil
	}

	uiMessages := make(chan any, 16)
	var schedStats scheduler.Stats

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx, scheduler.Config{
			Rate:                   cfg.FrameRate,
			MaxConsecutiveFailures: cfg.MaxFailures,
			LogEvery:               cfg.LogEvery,
			Logger:                 logger.Named("scheduler"),
		}, &schedStats, tick)
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.UIRate)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				flushSnapshot(st, &m, uiMessages)
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				snapshot := m.snapshot()
				logger.Infow("metrics",
					"frames", snapshot["frames_rendered_total"],
					"published", snapshot["frames_published_total"],
					"broadcast", snapshot["frames_broadcast_total"],
					"tick_failures", schedStats.Failures.Load(),
				)
			}
		}
	})

	if cfg.GeometryURL != "" {
		paths := geomsource.BuildPaths(cfg.GeometryURL, cfg.GeometryAPIVersion, "sensor", "geometry")
		g.Go(func() error {
			geomsource.Poll(gctx, paths, cfg.GeometryInterval, logger.Named("geomsource"), func(geom types.ScanGeometry) {
				if err := setGeometry(geom); err != nil {
					logger.Warnw("polled geometry invalid", "error", err)
				}
			})
			return nil
		})
	}

	srv := server.New(cfg, server.Hooks{
		Status: func() map[string]any {
			st.mu.Lock()
			defer st.mu.Unlock()
			metricsPayload := m.snapshot()
			for k, v := range schedStats.Snapshot() {
				metricsPayload[k] = v
			}
			if publisher != nil {
				sent, dropped := publisher.Counters()
				metricsPayload["zmq_sent_total"] = sent
				metricsPayload["zmq_dropped_total"] = dropped
			}
			return map[string]any{
				"state":    st.sensor,
				"geometry": st.geometry,
				"metrics":  metricsPayload,
			}
		},
		Snapshot: func() any {
			st.mu.Lock()
			defer st.mu.Unlock()
			if st.latest == nil {
				return nil
			}
			return *st.latest
		},
		Geometry: func() (types.ScanGeometry, bool) {
			st.mu.Lock()
			defer st.mu.Unlock()
			return st.geometry, true
		},
		SetGeometry: setGeometry,
	}, logger.Named("server"))
	g.Go(func() error {
		return srv.Run(gctx, uiMessages)
	})

	if err := g.Wait(); err != nil {
		logger.Errorw("sonar-sim stopped", "error", err)
		return
	}
	logger.Info("sonar-sim stopped")
}

func flushSnapshot(st *state, m *metrics, uiMessages chan any) {
	st.mu.Lock()
	data := st.agg.SnapshotCopy()
	if len(data) == 0 {
		st.mu.Unlock()
		return
	}
	width, height := st.agg.Size()
	message := types.UISnapshot{
		Type:     "scan",
		Sequence: st.agg.Sequence(),
		Width:    width,
		Height:   height,
		Data:     data,
	}
	st.latest = &message
	st.mu.Unlock()

	select {
	case uiMessages <- message:
		m.framesBroadcast.Add(1)
	default:
	}
}
