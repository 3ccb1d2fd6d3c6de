package processing

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"sonar-sim-go/internal/types"
)

// Aggregator keeps the latest processed scan and counts frames towards the
// next series write.
type Aggregator struct {
	width      int
	height     int
	every      int
	frameCount int
	sequence   uint64
	data       map[string]*ChannelData
}

func NewAggregator(width, height, every int) *Aggregator {
	if every < 1 {
		every = 1
	}
	return &Aggregator{
		width:  width,
		height: height,
		every:  every,
		data:   make(map[string]*ChannelData),
	}
}

// AddFrame stores the frame and reports whether a series write is due.
// Frames of another size are rejected.
func (a *Aggregator) AddFrame(frame types.ScanFrame) bool {
	if frame.Width != a.width || frame.Height != a.height {
		return false
	}
	data, ok := ProcessFrame(frame)
	if !ok {
		return false
	}
	a.data = data
	a.sequence = frame.Sequence
	a.frameCount++
	return a.frameCount%a.every == 0
}

func (a *Aggregator) Size() (int, int) {
	return a.width, a.height
}

func (a *Aggregator) Sequence() uint64 {
	return a.sequence
}

func (a *Aggregator) Reset() {
	a.frameCount = 0
	a.data = make(map[string]*ChannelData)
}

func (a *Aggregator) Snapshot() map[string]*ChannelData {
	return a.data
}

func (a *Aggregator) SnapshotCopy() map[string]types.ChannelSnapshot {
	snapshot := make(map[string]types.ChannelSnapshot, len(a.data))
	for channel, data := range a.data {
		values := make([]float32, len(data.Values))
		copy(values, data.Values)
		mask := make([]bool, len(data.Mask))
		copy(mask, data.Mask)
		minVal, maxVal, mean := Stats(data.Values, data.Mask)
		snapshot[channel] = types.ChannelSnapshot{
			Values: values,
			Mask:   mask,
			Min:    minVal,
			Max:    maxVal,
			Mean:   mean,
		}
	}
	return snapshot
}

// Stats returns min, max and mean over the unmasked values, or zeros when
// every value is masked.
func Stats(values []float32, mask []bool) (float64, float64, float64) {
	valid := make([]float64, 0, len(values))
	for i, v := range values {
		if len(mask) > 0 && !mask[i] {
			continue
		}
		valid = append(valid, float64(v))
	}
	if len(valid) == 0 {
		return 0, 0, 0
	}
	return floats.Min(valid), floats.Max(valid), stat.Mean(valid, nil)
}

func Timestamp() string {
	return time.Now().Format("20060102_150405")
}
