package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Frame is a single encoded audio window ready for transmission to the
// transcription provider. Payload is base64-encoded 16-bit little-endian PCM.
type Frame struct {
	Payload  string
	MIMEType string
}

// Encoder converts normalized float32 sample windows into provider frames.
// It is stateless and safe for concurrent use.
type Encoder struct {
	mimeType string
}

// NewEncoder creates an encoder for the given sample rate
func NewEncoder(sampleRate int) *Encoder {
	return &Encoder{
		mimeType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
	}
}

// Encode quantizes a window of samples in [-1.0, 1.0] to 16-bit signed
// little-endian PCM and base64-encodes the result. Quantization truncates
// (int16(s * 32768)) to stay bit-compatible with the provider integration;
// out-of-range samples wrap rather than clip. An empty window yields an
// empty payload.
func (e *Encoder) Encode(window []float32) Frame {
	buf := make([]byte, len(window)*2)
	for i, s := range window {
		// Convert through int32 so out-of-range values wrap deterministically
		v := int16(int32(s * 32768))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}

	return Frame{
		Payload:  base64.StdEncoding.EncodeToString(buf),
		MIMEType: e.mimeType,
	}
}
