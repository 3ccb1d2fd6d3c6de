package ingest

import (
	"math"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"

	"sonar-sim-go/internal/types"
)

func TestDecodeScanMessage(t *testing.T) {
	frame := types.ScanFrame{
		Sequence:     7,
		SimTime:      1.25,
		Width:        2,
		Height:       1,
		ChannelDepth: types.ChannelDepth,
		Format:       types.FormatFloat32RGB,
		Ranges:       []float32{3.5, 0.8, 0, float32(math.Inf(1)), 0, 0},
	}

	payload, err := EncodeScan(frame)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeScan(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Sequence != 7 {
		t.Fatalf("unexpected sequence: %d", got.Sequence)
	}
	if got.SimTime != 1.25 {
		t.Fatalf("unexpected sim_time: %v", got.SimTime)
	}
	if got.Width != 2 || got.Height != 1 || got.ChannelDepth != types.ChannelDepth {
		t.Fatalf("unexpected shape: %dx%dx%d", got.Width, got.Height, got.ChannelDepth)
	}
	if got.Format != types.FormatFloat32RGB {
		t.Fatalf("unexpected format: %q", got.Format)
	}
	if got.Range(0, 0) != 3.5 {
		t.Fatalf("unexpected range(0,0): %v", got.Range(0, 0))
	}
	if !math.IsInf(float64(got.Range(0, 1)), 1) {
		t.Fatalf("expected +Inf at (0,1), got %v", got.Range(0, 1))
	}
}

func TestDecodeGeometryMessage(t *testing.T) {
	geom := types.ScanGeometry{
		HorizontalFOV:    1.04,
		VerticalFOV:      0.26,
		NearClip:         0.1,
		FarClip:          30,
		CameraCount:      2,
		RangeCountWidth:  640,
		RangeCountHeight: 8,
	}
	payload, err := EncodeGeometry(geom)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	msg, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != MessageGeometry {
		t.Fatalf("unexpected type: %q", msg.Type)
	}
	if diff := cmp.Diff(geom, msg.Geometry); diff != "" {
		t.Fatalf("geometry mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMessageRejectsUnknownType(t *testing.T) {
	payload, err := cbor.Marshal(map[string]any{"type": "image", "image_id": 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	_, err = DecodeMessage(payload)
	if err == nil || !strings.Contains(err.Error(), "unknown message type") {
		t.Fatalf("expected unknown message type, got %v", err)
	}
}

func TestDecodeScanRejectsFlatRanges(t *testing.T) {
	ranges, err := encodeMultiDimArray([]float32{1, 2, 3}, 3)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	payload, err := cbor.Marshal(map[string]any{
		"type":     MessageScan,
		"sequence": 1,
		"sim_time": 0.0,
		"ranges":   ranges,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := DecodeScan(payload); err == nil || !strings.Contains(err.Error(), "height, width, depth") {
		t.Fatalf("expected shape error, got %v", err)
	}
}
