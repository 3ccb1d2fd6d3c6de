package ingest

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"sonar-sim-go/internal/types"
)

// Message types on the scan stream.
const (
	MessageScan     = "scan"
	MessageGeometry = "geometry"
)

// Message is one decoded stream message. Exactly one of Scan and Geometry
// is set, matching Type.
type Message struct {
	Type     string
	Scan     types.ScanFrame
	Geometry types.ScanGeometry
}

type geometryMessage struct {
	Type     string             `cbor:"type"`
	Geometry types.ScanGeometry `cbor:"geometry"`
}

// EncodeScan encodes a frame as
// { "type": "scan", "sequence", "sim_time", "format", "ranges": tag40([h, w, depth], tag85) }.
func EncodeScan(frame types.ScanFrame) ([]byte, error) {
	ranges, err := encodeMultiDimArray(frame.Ranges, frame.Height, frame.Width, frame.ChannelDepth)
	if err != nil {
		return nil, errors.Wrap(err, "encode ranges")
	}
	return cbor.Marshal(map[string]any{
		"type":     MessageScan,
		"sequence": frame.Sequence,
		"sim_time": frame.SimTime,
		"format":   frame.Format,
		"ranges":   ranges,
	})
}

// EncodeGeometry announces the geometry that following scans use.
func EncodeGeometry(geom types.ScanGeometry) ([]byte, error) {
	return cbor.Marshal(geometryMessage{Type: MessageGeometry, Geometry: geom})
}

// DecodeMessage decodes either message type.
func DecodeMessage(msg []byte) (Message, error) {
	var payload map[string]any
	if err := cbor.Unmarshal(msg, &payload); err != nil {
		return Message{}, errors.Wrap(err, "CBOR decode")
	}

	msgType, _ := payload["type"].(string)
	switch msgType {
	case MessageScan:
		frame, err := decodeScan(payload)
		if err != nil {
			return Message{}, err
		}
		return Message{Type: msgType, Scan: frame}, nil
	case MessageGeometry:
		var gm geometryMessage
		if err := cbor.Unmarshal(msg, &gm); err != nil {
			return Message{}, errors.Wrap(err, "decode geometry")
		}
		return Message{Type: msgType, Geometry: gm.Geometry}, nil
	default:
		return Message{}, errors.Errorf("unknown message type %q", msgType)
	}
}

// DecodeScan decodes a scan message.
func DecodeScan(msg []byte) (types.ScanFrame, error) {
	m, err := DecodeMessage(msg)
	if err != nil {
		return types.ScanFrame{}, err
	}
	if m.Type != MessageScan {
		return types.ScanFrame{}, errors.Errorf("expected scan message, got %q", m.Type)
	}
	return m.Scan, nil
}

func decodeScan(payload map[string]any) (types.ScanFrame, error) {
	sequence, err := toInt(payload["sequence"])
	if err != nil {
		return types.ScanFrame{}, errors.Wrap(err, "invalid sequence")
	}
	simTime, err := toFloat(payload["sim_time"])
	if err != nil {
		return types.ScanFrame{}, errors.Wrap(err, "invalid sim_time")
	}
	format, _ := payload["format"].(string)

	flat, dims, err := decodeMultiDimArray(payload["ranges"])
	if err != nil {
		return types.ScanFrame{}, errors.Wrap(err, "invalid ranges")
	}
	if len(dims) != 3 {
		return types.ScanFrame{}, errors.Errorf("ranges must be [height, width, depth], got %v", dims)
	}
	ranges, err := toFloat32s(flat)
	if err != nil {
		return types.ScanFrame{}, err
	}
	return types.ScanFrame{
		Sequence:     uint64(sequence),
		SimTime:      simTime,
		Height:       dims[0],
		Width:        dims[1],
		ChannelDepth: dims[2],
		Format:       format,
		Ranges:       ranges,
	}, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, errors.Errorf("unsupported int type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, errors.Errorf("unsupported float type %T", v)
	}
}
