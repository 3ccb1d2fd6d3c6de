package sonar

import "github.com/pkg/errors"

var (
	ErrNotConfigured = errors.New("sensor not configured")
	ErrTornDown      = errors.New("sensor torn down")
	// ErrStaleBuffer means the composite target no longer matches the
	// configured geometry. The sensor rebuilds before the next frame.
	ErrStaleBuffer = errors.New("composite buffer does not match geometry")
)
