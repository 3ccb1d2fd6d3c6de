package output

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sonar-sim-go/internal/mesh"
	"sonar-sim-go/internal/processing"
	"sonar-sim-go/internal/types"
)

func TestWriteScan(t *testing.T) {
	geom := types.ScanGeometry{
		HorizontalFOV:    1.0,
		VerticalFOV:      0.2,
		NearClip:         0.1,
		FarClip:          30,
		CameraCount:      1,
		RangeCountWidth:  3,
		RangeCountHeight: 1,
	}.WithDerived()
	m, err := mesh.Build(geom)
	require.NoError(t, err)

	data := map[string]*processing.ChannelData{
		processing.ChannelRange: {Values: []float32{1, 0, 3}, Mask: []bool{true, false, true}},
		processing.ChannelRetro: {Values: []float32{0.5, 0, 1}, Mask: []bool{true, false, true}},
	}
	dir := t.TempDir()
	path, err := WriteScan(dir, "run", 7, m, data)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "run_scan_000007.csv"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "row, col, azimuth, elevation, range, retro", lines[0])
	require.Equal(t, "0, 0, -0.500000, 0.000000, 1.000000, 0.5000", lines[1])
	require.Equal(t, "0, 2, 0.500000, 0.000000, 3.000000, 1.0000", lines[2])
}

func TestWriteScanRejectsMismatch(t *testing.T) {
	geom := types.ScanGeometry{
		HorizontalFOV: 1, NearClip: 0.1, FarClip: 1, CameraCount: 1,
		RangeCountWidth: 4, RangeCountHeight: 1,
	}.WithDerived()
	m, err := mesh.Build(geom)
	require.NoError(t, err)
	_, err = WriteScan(t.TempDir(), "run", 1, m, map[string]*processing.ChannelData{
		processing.ChannelRange: {Values: []float32{1}, Mask: []bool{true}},
	})
	require.Error(t, err)
}

func TestRawLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRawLogWriter(dir, "scan_cbor")
	require.NoError(t, err)
	ts := time.Unix(10, 5)
	require.NoError(t, w.RecordAt(ts, []byte("first")))
	require.NoError(t, w.Record([]byte{}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.Error(t, w.Record([]byte("late")))

	raw, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	r, err := NewRawLogReader(bytes.NewReader(raw))
	require.NoError(t, err)

	rec, err := r.Next()
	require.NoError(t, err)
	require.True(t, rec.Timestamp.Equal(ts))
	require.Equal(t, []byte("first"), rec.Payload)

	rec, err = r.Next()
	require.NoError(t, err)
	require.Empty(t, rec.Payload)

	_, err = r.Next()
	require.Equal(t, io.EOF, err)
}

func TestRawLogReaderRejectsMagic(t *testing.T) {
	_, err := NewRawLogReader(strings.NewReader("STXMRAW1"))
	require.ErrorContains(t, err, "unexpected rawlog magic")
}

func TestNormalizeJSONValue(t *testing.T) {
	in := map[any]any{
		"range": float32(math.Inf(1)),
		uint64(3): []any{math.NaN(), 1.5},
		"ranges": []float32{1, float32(math.Inf(1))},
	}
	out := NormalizeJSONValue(in)
	encoded, err := json.Marshal(out)
	require.NoError(t, err)
	require.JSONEq(t, `{"range": null, "3": [null, 1.5], "ranges": [1, null]}`, string(encoded))
}
