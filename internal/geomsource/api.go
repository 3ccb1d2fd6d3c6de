// Package geomsource fetches scan geometries from a remote HTTP service.
package geomsource

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"sonar-sim-go/internal/types"
)

var (
	ErrMissingBaseURL = errors.New("missing base url")
	ErrNotFound       = errors.New("geometry not found")
)

// BuildPaths lists the URLs a geometry may be served at, most specific
// first.
func BuildPaths(baseURL string, apiVersion string, module string, param string) []string {
	baseURL = strings.TrimRight(baseURL, "/")
	apiVersion = strings.Trim(apiVersion, "/")
	module = strings.Trim(module, "/")
	param = strings.TrimLeft(param, "/")
	if baseURL == "" || module == "" || param == "" {
		return nil
	}

	paths := make([]string, 0, 3)
	if apiVersion != "" {
		paths = append(paths, baseURL+"/"+module+"/api/"+apiVersion+"/config/"+param)
		paths = append(paths, baseURL+"/api/"+apiVersion+"/"+module+"/config/"+param)
	}
	paths = append(paths, baseURL+"/"+module+"/config/"+param)
	return paths
}

// Fetch tries every path in order and decodes the first one that does not
// answer 404. The body is a geometry object, optionally wrapped as
// {"value": {...}}.
func Fetch(ctx context.Context, client *http.Client, paths []string) (types.ScanGeometry, error) {
	if len(paths) == 0 {
		return types.ScanGeometry{}, ErrMissingBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	var lastErr error = ErrNotFound
	for _, path := range paths {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return types.ScanGeometry{}, errors.Errorf("GET %s: http_%d", path, resp.StatusCode)
		}
		if readErr != nil {
			return types.ScanGeometry{}, errors.Wrapf(readErr, "GET %s", path)
		}
		return decodeGeometry(body)
	}
	return types.ScanGeometry{}, lastErr
}

func decodeGeometry(body []byte) (types.ScanGeometry, error) {
	var wrapped struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return types.ScanGeometry{}, errors.Wrap(err, "decode geometry")
	}
	if len(wrapped.Value) > 0 {
		body = wrapped.Value
	}
	var geom types.ScanGeometry
	if err := json.Unmarshal(body, &geom); err != nil {
		return types.ScanGeometry{}, errors.Wrap(err, "decode geometry")
	}
	if err := geom.Validate(); err != nil {
		return types.ScanGeometry{}, err
	}
	return geom, nil
}
