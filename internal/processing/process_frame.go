package processing

import (
	"math"

	"sonar-sim-go/internal/types"
)

// Channel names of a processed scan.
const (
	ChannelRange = "range"
	ChannelRetro = "retro"
)

type ChannelData struct {
	Values []float32
	Mask   []bool
}

// ProcessFrame splits an interleaved scan into per-channel planes. Cells
// without a return are masked out of both planes and carry a zero value so
// the planes can be JSON encoded.
func ProcessFrame(frame types.ScanFrame) (map[string]*ChannelData, bool) {
	cells := frame.Width * frame.Height
	if cells == 0 || frame.ChannelDepth < 2 || len(frame.Ranges) < cells*frame.ChannelDepth {
		return nil, false
	}

	ranges := &ChannelData{Values: make([]float32, cells), Mask: make([]bool, cells)}
	retro := &ChannelData{Values: make([]float32, cells), Mask: make([]bool, cells)}
	for i := 0; i < cells; i++ {
		base := i * frame.ChannelDepth
		r := frame.Ranges[base+types.ChannelRange]
		if !validRange(r) {
			continue
		}
		ranges.Values[i] = r
		ranges.Mask[i] = true
		retro.Values[i] = frame.Ranges[base+types.ChannelRetro]
		retro.Mask[i] = true
	}
	return map[string]*ChannelData{
		ChannelRange: ranges,
		ChannelRetro: retro,
	}, true
}

func validRange(r float32) bool {
	v := float64(r)
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
