package protocol

import (
	"encoding/base64"
	"encoding/binary"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/remnetwork/dvm-miner/src/common"
)

// Vector payloads travel as little-endian float32 data, zstd-compressed and
// base64-encoded, so that large batches fit comfortably inside JSON frames.

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EncodeVectors packs a batch of equal-length vectors into a payload string.
func EncodeVectors(vectors [][]float32) string {
	var n int
	for _, v := range vectors {
		n += len(v)
	}

	raw := make([]byte, 0, n*4)
	var scratch [4]byte
	for _, v := range vectors {
		for _, f := range v {
			binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(f))
			raw = append(raw, scratch[:]...)
		}
	}

	compressed := zstdEncoder.EncodeAll(raw, nil)

	return base64.StdEncoding.EncodeToString(compressed)
}

// DecodeVectors unpacks a payload of count vectors of dim components each.
func DecodeVectors(payload string, count, dim int) ([][]float32, error) {
	if count < 0 || dim <= 0 {
		return nil, common.NewMinerErr(common.ProtocolViolation, "invalid vector payload shape (%d, %d)", count, dim)
	}

	compressed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, common.NewMinerErr(common.ProtocolViolation, "vector payload is not base64: %v", err)
	}

	raw, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, common.NewMinerErr(common.ProtocolViolation, "vector payload is not zstd: %v", err)
	}

	if len(raw) != count*dim*4 {
		return nil, common.NewMinerErr(common.ProtocolViolation,
			"vector payload is %d bytes, want %d for shape (%d, %d)", len(raw), count*dim*4, count, dim)
	}

	vectors := make([][]float32, count)
	off := 0
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
			off += 4
		}
		vectors[i] = v
	}

	return vectors, nil
}

// EncodeVector packs a single query vector.
func EncodeVector(vector []float32) string {
	return EncodeVectors([][]float32{vector})
}

// DecodeVector unpacks a single query vector of dim components.
func DecodeVector(payload string, dim int) ([]float32, error) {
	vectors, err := DecodeVectors(payload, 1, dim)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
