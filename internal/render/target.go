package render

import (
	"math"

	"github.com/pkg/errors"
)

// ErrTargetBusy is returned when a target's front buffer is swapped out
// before its previous frame was read back or discarded.
var ErrTargetBusy = errors.New("render target front buffer awaiting readback")

// Target is a double-buffered float32 RGB render target. Render calls write
// the back buffer; Swap publishes it as the front buffer that sampling and
// readback use.
type Target struct {
	name     string
	width    int
	height   int
	readback bool
	buffers  [2][]float32
	back     int
	pending  bool
	swaps    uint64
	released bool
}

func NewTarget(name string, width, height int, readback bool) *Target {
	t := &Target{
		name:     name,
		width:    width,
		height:   height,
		readback: readback,
	}
	t.buffers[0] = make([]float32, width*height*3)
	t.buffers[1] = make([]float32, width*height*3)
	return t
}

func (t *Target) Name() string { return t.name }
func (t *Target) Width() int   { return t.width }
func (t *Target) Height() int  { return t.height }

// Swaps counts completed swaps.
func (t *Target) Swaps() uint64 { return t.swaps }

// Released reports whether the target's memory was given back.
func (t *Target) Released() bool { return t.released }

// Clear fills the back buffer with c.
func (t *Target) Clear(c Color) error {
	if t.released {
		return errors.Wrap(ErrReleased, t.name)
	}
	buf := t.buffers[t.back]
	for i := 0; i < len(buf); i += 3 {
		buf[i], buf[i+1], buf[i+2] = c[0], c[1], c[2]
	}
	return nil
}

// Set writes pixel (x, y) of the back buffer.
func (t *Target) Set(x, y int, c Color) {
	i := (y*t.width + x) * 3
	buf := t.buffers[t.back]
	buf[i], buf[i+1], buf[i+2] = c[0], c[1], c[2]
}

// Swap makes the back buffer the front buffer. A readback target refuses to
// swap while the previous front buffer has not been read or discarded.
func (t *Target) Swap() error {
	if t.released {
		return errors.Wrap(ErrReleased, t.name)
	}
	if t.readback && t.pending {
		return errors.Wrap(ErrTargetBusy, t.name)
	}
	t.back ^= 1
	t.swaps++
	t.pending = t.readback
	return nil
}

// Discard abandons the pending front buffer without reading it.
func (t *Target) Discard() {
	t.pending = false
}

// Pending reports whether the front buffer still awaits readback.
func (t *Target) Pending() bool {
	return t.pending
}

// ReadFront copies the front buffer into dst and completes the readback.
func (t *Target) ReadFront(dst []float32) error {
	if t.released {
		return errors.Wrap(ErrReleased, t.name)
	}
	front := t.buffers[t.back^1]
	if len(dst) < len(front) {
		return errors.Errorf("readback buffer too small: %d < %d", len(dst), len(front))
	}
	copy(dst, front)
	t.pending = false
	return nil
}

// Sample reads the front buffer at (u, v) with nearest filtering and mirrored
// addressing. v=0 is the top row.
func (t *Target) Sample(u, v float64) Color {
	x := mirror(int(math.Floor(u*float64(t.width))), t.width)
	y := mirror(int(math.Floor(v*float64(t.height))), t.height)
	i := (y*t.width + x) * 3
	front := t.buffers[t.back^1]
	return Color{front[i], front[i+1], front[i+2]}
}

func mirror(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i - 1
	}
	return i
}

// Release drops the target's buffers. Backends call it from ReleaseTarget.
func (t *Target) Release() {
	t.released = true
	t.pending = false
	t.buffers[0] = nil
	t.buffers[1] = nil
}
