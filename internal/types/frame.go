package types

// FormatFloat32RGB tags frames carrying three float32 channels per cell.
const FormatFloat32RGB = "FLOAT32_RGB"

// ChannelDepth is the number of float32 channels per scan cell.
const ChannelDepth = 3

// Channel offsets within one scan cell.
const (
	ChannelRange = 0
	ChannelRetro = 1
)

// ScanFrame is one composited range image. Ranges is row-major with
// ChannelDepth values per cell.
type ScanFrame struct {
	Sequence     uint64    `json:"sequence"`
	SimTime      float64   `json:"sim_time"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	ChannelDepth int       `json:"channel_depth"`
	Format       string    `json:"format"`
	Ranges       []float32 `json:"ranges"`
}

// Range returns the range channel of cell (row, col).
func (f ScanFrame) Range(row, col int) float32 {
	return f.Ranges[(row*f.Width+col)*f.ChannelDepth+ChannelRange]
}

// Clone returns a frame that owns its data.
func (f ScanFrame) Clone() ScanFrame {
	out := f
	out.Ranges = append([]float32(nil), f.Ranges...)
	return out
}
