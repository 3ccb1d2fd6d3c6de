package geomsource

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sonar-sim-go/internal/logging"
	"sonar-sim-go/internal/types"
)

// Poll fetches the geometry every interval until ctx is done. update is
// called with the first geometry and then only when it changes.
func Poll(ctx context.Context, paths []string, interval time.Duration, logger *zap.SugaredLogger, update func(types.ScanGeometry)) {
	if len(paths) == 0 || update == nil {
		return
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	client := &http.Client{
		Timeout: 900 * time.Millisecond,
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := logging.EveryN{N: 10}
	var last types.ScanGeometry
	seen := false
	for {
		geom, err := Fetch(ctx, client, paths)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				failures.Warnw(logger, "geometry fetch failed", "error", err)
			}
		case !seen || geom != last:
			last = geom
			seen = true
			logger.Infow("geometry changed", "cameras", geom.CameraCount,
				"range_count", []int{geom.RangeCountWidth, geom.RangeCountHeight})
			update(geom)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
