package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"sonar-sim-go/internal/ingest"
	"sonar-sim-go/internal/logging"
	"sonar-sim-go/internal/output"
)

func main() {
	var (
		path   = flag.String("path", "", "Path to rawlog .bin file")
		limit  = flag.Int("limit", 1, "Number of records to dump")
		export = flag.String("export", "", "Directory to write each record as <n>.cbor")
	)
	flag.Parse()

	logger := logging.NewLogger("scan-rawlog-dump", false)
	defer func() { _ = logger.Sync() }()

	if *path == "" {
		logger.Fatal("path is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		logger.Fatalw("open rawlog", "error", err)
	}
	defer f.Close()

	reader, err := output.NewRawLogReader(f)
	if err != nil {
		logger.Fatalw("read rawlog", "error", err)
	}
	if *export != "" {
		if err := os.MkdirAll(*export, 0o755); err != nil {
			logger.Fatalw("create export dir", "error", err)
		}
	}

	count := 0
	for {
		if *limit > 0 && count >= *limit {
			return
		}
		record, err := reader.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			logger.Fatalw("read record", "record", count, "error", err)
		}
		if len(record.Payload) == 0 {
			logger.Infow("empty payload", "record", count)
			count++
			continue
		}

		if *export != "" {
			name := fmt.Sprintf("%s/%06d.cbor", *export, count)
			if err := os.WriteFile(name, record.Payload, 0o644); err != nil {
				logger.Warnw("export record", "record", count, "error", err)
			}
		}

		var decoded any
		if err := cbor.Unmarshal(record.Payload, &decoded); err != nil {
			logger.Warnw("CBOR decode error", "record", count, "error", err)
			count++
			continue
		}
		if scan, err := ingest.DecodeScan(record.Payload); err == nil {
			// the typed array is unreadable as JSON, print the decoded ranges
			if m, ok := decoded.(map[any]any); ok {
				m["ranges"] = scan.Ranges
			}
		}

		normalized := output.NormalizeJSONValue(decoded)
		pretty, err := json.MarshalIndent(normalized, "", "  ")
		if err != nil {
			logger.Warnw("JSON encode error", "record", count, "error", err)
			count++
			continue
		}

		logger.Infow("record", "index", count,
			"timestamp", record.Timestamp.Format(time.RFC3339Nano), "size", len(record.Payload))
		fmt.Println(string(pretty))
		count++
	}
}
