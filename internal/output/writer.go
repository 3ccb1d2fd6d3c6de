package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"sonar-sim-go/internal/mesh"
	"sonar-sim-go/internal/processing"
)

// WriteScan writes one CSV per scan with the ray angles of every cell that
// returned a range. Cells without a return are skipped.
func WriteScan(
	outputDir string,
	runTimestamp string,
	sequence uint64,
	m *mesh.Mesh,
	data map[string]*processing.ChannelData,
) (string, error) {
	if m == nil {
		return "", errors.New("write scan: no mesh")
	}
	ranges, ok := data[processing.ChannelRange]
	if !ok {
		return "", errors.New("write scan: no range channel")
	}
	retro := data[processing.ChannelRetro]
	if len(ranges.Values) != m.Width*m.Height {
		return "", errors.Errorf("write scan: %d values for a %dx%d mesh", len(ranges.Values), m.Width, m.Height)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	filename := filepath.Join(outputDir, fmt.Sprintf("%s_scan_%06d.csv", runTimestamp, sequence))
	f, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	w := bufio.NewWriter(f)
	_, _ = fmt.Fprintln(w, "row, col, azimuth, elevation, range, retro")
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			idx := row*m.Width + col
			if !ranges.Mask[idx] {
				continue
			}
			var r float32
			if retro != nil {
				r = retro.Values[idx]
			}
			_, _ = fmt.Fprintf(
				w,
				"%d, %d, %.6f, %.6f, %.6f, %.4f\n",
				row,
				col,
				m.Azimuth(col),
				m.Elevation(row),
				ranges.Values[idx],
				r,
			)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return "", err
	}
	return filename, f.Close()
}
