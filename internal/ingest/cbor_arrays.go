package ingest

import (
	"encoding/binary"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// RFC 8746 tags.
const (
	tagMultiDimArray = 40
	tagUint8         = 64
	tagUint16LE      = 69
	tagUint32LE      = 70
	tagFloat32LE     = 85
)

// encodeMultiDimArray wraps a row-major float32 array in a tag 40 array
// whose data is a little-endian float32 typed array.
func encodeMultiDimArray(values []float32, dims ...int) (cbor.Tag, error) {
	n := 1
	for _, d := range dims {
		n *= d
	}
	if n != len(values) {
		return cbor.Tag{}, errors.Errorf("dimension mismatch: %v holds %d values, got %d", dims, n, len(values))
	}
	rawDims := make([]any, len(dims))
	for i, d := range dims {
		rawDims[i] = d
	}
	return cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			rawDims,
			cbor.Tag{Number: tagFloat32LE, Content: float32ToBytes(values)},
		},
	}, nil
}

// decodeMultiDimArray returns the flat data and the dimensions of a tag 40
// array.
func decodeMultiDimArray(value any) (any, []int, error) {
	tag, ok := value.(cbor.Tag)
	if !ok || tag.Number != tagMultiDimArray {
		return nil, nil, errors.New("expected multidim tag 40")
	}

	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return nil, nil, errors.New("invalid multidim array content")
	}

	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) == 0 {
		return nil, nil, errors.New("invalid multidim dimensions")
	}
	dims := make([]int, len(dimsRaw))
	total := 1
	for i, d := range dimsRaw {
		v, err := toInt(d)
		if err != nil {
			return nil, nil, err
		}
		if v < 0 {
			return nil, nil, errors.Errorf("negative dimension %d", v)
		}
		dims[i] = v
		total *= v
	}

	flat, err := decodeTypedArray(items[1])
	if err != nil {
		return nil, nil, err
	}
	if typedLen(flat) != total {
		return nil, nil, errors.Errorf("dimension mismatch: %v holds %d values, got %d", dims, total, typedLen(flat))
	}
	return flat, dims, nil
}

func decodeTypedArray(value any) (any, error) {
	tag, ok := value.(cbor.Tag)
	if !ok {
		return nil, errors.New("expected typed array tag")
	}

	dataBytes, ok := tag.Content.([]byte)
	if !ok {
		return nil, errors.Errorf("unsupported typed array content %T", tag.Content)
	}

	switch tag.Number {
	case tagUint8:
		return dataBytes, nil
	case tagUint16LE:
		return bytesToUint16(dataBytes), nil
	case tagUint32LE:
		return bytesToUint32(dataBytes), nil
	case tagFloat32LE:
		return bytesToFloat32(dataBytes), nil
	default:
		return nil, errors.Errorf("unsupported typed array tag %d", tag.Number)
	}
}

func typedLen(v any) int {
	switch a := v.(type) {
	case []uint8:
		return len(a)
	case []uint16:
		return len(a)
	case []uint32:
		return len(a)
	case []float32:
		return len(a)
	default:
		return -1
	}
}

// toFloat32s widens integer typed arrays so any numeric array can be read
// as ranges.
func toFloat32s(v any) ([]float32, error) {
	switch a := v.(type) {
	case []float32:
		return a, nil
	case []uint8:
		out := make([]float32, len(a))
		for i, x := range a {
			out[i] = float32(x)
		}
		return out, nil
	case []uint16:
		out := make([]float32, len(a))
		for i, x := range a {
			out[i] = float32(x)
		}
		return out, nil
	case []uint32:
		out := make([]float32, len(a))
		for i, x := range a {
			out[i] = float32(x)
		}
		return out, nil
	default:
		return nil, errors.Errorf("unsupported typed array type %T", v)
	}
}

func bytesToUint16(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := 0; i < len(out); i++ {
		out[i] = binary.LittleEndian.Uint16(data[i*2 : i*2+2])
	}
	return out
}

func bytesToUint32(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := 0; i < len(out); i++ {
		out[i] = binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}
	return out
}

func bytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := 0; i < len(out); i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func float32ToBytes(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(v))
	}
	return out
}
