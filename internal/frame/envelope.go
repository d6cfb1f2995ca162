package frame

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// zstdMagic starts every zstd frame. Envelopes beginning with it are
// decompressed before decoding.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

var (
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(64<<20))
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
)

// Envelope is the wire form of a frame sent by camera clients over the
// camera websocket. Plane data keeps the sender's padding.
type Envelope struct {
	Width    int           `msgpack:"w"`
	Height   int           `msgpack:"h"`
	Rotation int           `msgpack:"rot"`
	Y        PlaneEnvelope `msgpack:"y"`
	U        PlaneEnvelope `msgpack:"u"`
	V        PlaneEnvelope `msgpack:"v"`
}

// PlaneEnvelope carries one plane with its declared strides.
type PlaneEnvelope struct {
	Data        []byte `msgpack:"data"`
	RowStride   int    `msgpack:"rs"`
	PixelStride int    `msgpack:"ps"`
}

func (p PlaneEnvelope) plane(w, h int) Plane {
	return Plane{Data: p.Data, RowStride: p.RowStride, PixelStride: p.PixelStride, Width: w, Height: h}
}

// DecodeEnvelope parses a msgpack envelope, optionally zstd-compressed, into
// a frame no larger than limits. An uncompressed frame aliases msg, so msg
// must not be reused until the frame is released.
func DecodeEnvelope(msg []byte, limits Limits) (*Frame, error) {
	if bytes.HasPrefix(msg, zstdMagic) {
		raw, err := zstdDecoder.DecodeAll(msg, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress frame envelope: %w", err)
		}
		msg = raw
	}

	var env Envelope
	if err := msgpack.Unmarshal(msg, &env); err != nil {
		return nil, fmt.Errorf("failed to decode frame envelope: %w", err)
	}

	cw, ch := ChromaSize(env.Width, env.Height)
	f := New(env.Y.plane(env.Width, env.Height), env.U.plane(cw, ch), env.V.plane(cw, ch), env.Width, env.Height, env.Rotation, nil)
	if err := f.ValidateWithin(limits); err != nil {
		return nil, fmt.Errorf("invalid frame envelope: %w", err)
	}
	for _, p := range []struct {
		name  string
		plane Plane
	}{{"y", f.Y}, {"u", f.U}, {"v", f.V}} {
		if len(p.plane.Data) < p.plane.rowSpan() {
			return nil, fmt.Errorf("invalid frame envelope: plane %s has %d bytes, less than one row", p.name, len(p.plane.Data))
		}
	}
	return f, nil
}

// EncodeEnvelope serializes f for the camera websocket.
func EncodeEnvelope(f *Frame) ([]byte, error) {
	env := Envelope{
		Width:    f.Width,
		Height:   f.Height,
		Rotation: f.Rotation,
		Y:        PlaneEnvelope{Data: f.Y.Data, RowStride: f.Y.RowStride, PixelStride: f.Y.PixelStride},
		U:        PlaneEnvelope{Data: f.U.Data, RowStride: f.U.RowStride, PixelStride: f.U.PixelStride},
		V:        PlaneEnvelope{Data: f.V.Data, RowStride: f.V.RowStride, PixelStride: f.V.PixelStride},
	}
	b, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame envelope: %w", err)
	}
	return b, nil
}

// EncodeEnvelopeCompressed is EncodeEnvelope followed by zstd compression.
func EncodeEnvelopeCompressed(f *Frame) ([]byte, error) {
	b, err := EncodeEnvelope(f)
	if err != nil {
		return nil, err
	}
	return zstdEncoder.EncodeAll(b, make([]byte, 0, len(b)/4)), nil
}
