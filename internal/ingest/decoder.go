package ingest

import "fmt"

// Decoder turns one encoded frame payload read off the wire into the
// fixed-size planar pixel buffer the rest of the pipeline expects.
// It is the black-box collaborator named in the purpose/scope: this
// package never inspects codec internals, only the decode outcome.
type Decoder interface {
	// Decode writes the decoded frame into dst, which is always
	// exactly frameBytes long. Decode must not retain dst or resize
	// it; a length mismatch it cannot satisfy is a decode failure.
	Decode(payload []byte, dst []byte) error
}

// PassthroughDecoder copies payload into dst verbatim, for use with
// cameras (or tests) that already send raw planar frames with no
// intermediate codec.
type PassthroughDecoder struct{}

func (PassthroughDecoder) Decode(payload []byte, dst []byte) error {
	if len(payload) != len(dst) {
		return fmt.Errorf("ingest: payload size mismatch: got %d want %d", len(payload), len(dst))
	}
	copy(dst, payload)
	return nil
}
