package sonar

import (
	"github.com/pkg/errors"

	"sonar-sim-go/internal/render"
	"sonar-sim-go/internal/types"
)

// Callback receives every extracted frame. ranges is only valid until the
// callback returns.
type Callback func(ranges []float32, width, height, depth int, format string)

// Connection identifies one subscription.
type Connection struct {
	id uint64
}

type subscriber struct {
	id uint64
	fn Callback
}

// Extractor reads the composite target back to host memory and hands the
// frame to subscribers.
type Extractor struct {
	subscribers []subscriber
	nextID      uint64
	host        []float32
	scan        []float32
	sequence    uint64
}

func (e *Extractor) Subscribe(fn Callback) Connection {
	e.nextID++
	e.subscribers = append(e.subscribers, subscriber{id: e.nextID, fn: fn})
	return Connection{id: e.nextID}
}

// Unsubscribe removes the subscription and reports whether it existed.
func (e *Extractor) Unsubscribe(c Connection) bool {
	for i, s := range e.subscribers {
		if s.id == c.id {
			e.subscribers = append(e.subscribers[:i:i], e.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Extractor) Subscribers() int {
	return len(e.subscribers)
}

// Extract blocks until the composite front buffer is in host memory, then
// notifies every subscriber in subscription order.
func (e *Extractor) Extract(backend render.Backend, composite *render.Target, geom types.ScanGeometry) (types.ScanFrame, error) {
	w, h := geom.RangeCountWidth, geom.RangeCountHeight
	if composite.Width() != w || composite.Height() != h {
		return types.ScanFrame{}, errors.Wrapf(ErrStaleBuffer, "target %dx%d, geometry %dx%d",
			composite.Width(), composite.Height(), w, h)
	}

	n := w * h * types.ChannelDepth
	if len(e.host) != n {
		e.host = make([]float32, n)
		e.scan = make([]float32, n)
	}
	if err := backend.Blit(composite, e.host); err != nil {
		return types.ScanFrame{}, errors.Wrap(err, "read back composite")
	}
	copy(e.scan, e.host)
	e.sequence++

	frame := types.ScanFrame{
		Sequence:     e.sequence,
		Width:        w,
		Height:       h,
		ChannelDepth: types.ChannelDepth,
		Format:       types.FormatFloat32RGB,
		Ranges:       e.scan,
	}

	// subscribers may unsubscribe from inside their callback
	subs := append([]subscriber(nil), e.subscribers...)
	for _, s := range subs {
		s.fn(frame.Ranges, frame.Width, frame.Height, frame.ChannelDepth, frame.Format)
	}
	return frame, nil
}

// LaserData is the last composite read back, or nil before the first frame.
func (e *Extractor) LaserData() []float32 {
	return e.host
}

// reset drops buffers sized for a previous geometry.
func (e *Extractor) reset() {
	e.host = nil
	e.scan = nil
}
