// Package pcm carries 16-bit mono PCM audio between the microphone, the
// energy meter and the per-speaker filter stage.
//
// Key types:
//   - Format: sample rate of an L16 mono stream
//   - Chunk / DataChunk: a slice of little-endian samples in a Format
//   - Writer: sink for chunks; meters and filter stages implement it
//
// Samples are converted to float64 in [-1, 1] with Int16ToFloat and back
// with FloatToInt16, which clips.
package pcm
