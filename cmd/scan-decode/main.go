package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"sonar-sim-go/internal/ingest"
	"sonar-sim-go/internal/logging"
	"sonar-sim-go/internal/processing"
	"sonar-sim-go/internal/types"
)

func main() {
	path := flag.String("path", "", "Path to CBOR file or directory")
	endpoint := flag.String("endpoint", "", "ZMQ endpoint to pull live scans from, e.g. tcp://localhost:31001")
	limit := flag.Int("limit", 5, "Max number of scan messages to summarize")
	flag.Parse()

	logger := logging.NewLogger("scan-decode", false)
	defer func() { _ = logger.Sync() }()

	if *path == "" && *endpoint == "" {
		logger.Fatal("missing -path or -endpoint")
	}

	var s summary
	if *endpoint != "" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		messages, err := ingest.Stream(ctx, *endpoint, logger, 1)
		if err != nil {
			logger.Fatalw("connect", "endpoint", *endpoint, "error", err)
		}
		for msg := range messages {
			s.add(*endpoint, msg, *limit)
			if *limit > 0 && s.scans >= *limit {
				stop()
			}
		}
	} else {
		files, err := listFiles(*path)
		if err != nil {
			logger.Fatalw("list files", "error", err)
		}
		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				logger.Warnw("read", "file", file, "error", err)
				continue
			}
			msg, err := ingest.DecodeMessage(data)
			if err != nil {
				logger.Warnw("decode", "file", file, "error", err)
				continue
			}
			s.add(file, msg, *limit)
		}
	}

	fmt.Printf("summary: geometry=%d scan=%d\n", s.geometries, s.scans)
}

type summary struct {
	geometries int
	scans      int
}

func (s *summary) add(source string, msg ingest.Message, limit int) {
	switch msg.Type {
	case ingest.MessageGeometry:
		s.geometries++
		g := msg.Geometry
		fmt.Printf("geometry: %s\n", source)
		fmt.Printf("  cameras: %d hfov: %.4f vfov: %.4f\n", g.CameraCount, g.HorizontalFOV, g.VerticalFOV)
		fmt.Printf("  range count: %dx%d clip: [%g, %g]\n", g.RangeCountWidth, g.RangeCountHeight, g.NearClip, g.FarClip)
	case ingest.MessageScan:
		s.scans++
		if limit > 0 && s.scans > limit {
			return
		}
		describeScan(source, msg.Scan)
	}
}

func describeScan(source string, frame types.ScanFrame) {
	fmt.Printf("scan: %s\n", source)
	fmt.Printf("  sequence: %d sim_time: %.3f\n", frame.Sequence, frame.SimTime)
	fmt.Printf("  dims: %dx%dx%d format: %s\n", frame.Height, frame.Width, frame.ChannelDepth, frame.Format)
	channels, ok := processing.ProcessFrame(frame)
	if !ok {
		fmt.Println("  invalid ranges")
		return
	}
	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ch := channels[name]
		hits := 0
		for _, ok := range ch.Mask {
			if ok {
				hits++
			}
		}
		minVal, maxVal, mean := processing.Stats(ch.Values, ch.Mask)
		fmt.Printf("  channel %s: hits %d/%d min %.3f max %.3f mean %.3f\n", name, hits, len(ch.Mask), minVal, maxVal, mean)
	}
}

func listFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == ".cbor" {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
