// Package config holds the service configuration and the geometry loaders.
package config

import (
	"time"

	"sonar-sim-go/internal/types"
)

type AppConfig struct {
	Port               int
	Workers            int
	FrameRate          float64
	MaxFailures        int
	Geometry           types.ScanGeometry
	GeometryFile       string
	GeometryURL        string
	GeometryAPIVersion string
	GeometryInterval   time.Duration
	SpinRate           float64
	UIRate             time.Duration
	OutputDir          string
	WriteEvery         int
	RawLogEnabled      bool
	RawLogDir          string
	PublishEndpoint    string
	LogEvery           int
	Debug              bool
}
