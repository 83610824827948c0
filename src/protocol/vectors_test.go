package protocol

import (
	"testing"

	"github.com/remnetwork/dvm-miner/src/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorPayloadRoundTrip(t *testing.T) {
	vectors := [][]float32{
		{1, 2, 3},
		{-0.5, 0.25, 1e10},
		{0, 0, 0},
	}

	payload := EncodeVectors(vectors)

	decoded, err := DecodeVectors(payload, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, vectors, decoded)
}

func TestSingleVectorRoundTrip(t *testing.T) {
	vector := []float32{0.1, -0.2, 0.3, 0.4}

	decoded, err := DecodeVector(EncodeVector(vector), 4)
	require.NoError(t, err)
	assert.Equal(t, vector, decoded)
}

func TestDecodeVectorsChecksShape(t *testing.T) {
	payload := EncodeVectors([][]float32{{1, 2}, {3, 4}})

	// Wrong dim for the payload length.
	_, err := DecodeVectors(payload, 2, 3)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.ProtocolViolation))

	// Wrong count.
	_, err = DecodeVectors(payload, 3, 2)
	require.Error(t, err)

	_, err = DecodeVectors(payload, 2, 0)
	require.Error(t, err)
}

func TestDecodeVectorsRejectsGarbage(t *testing.T) {
	_, err := DecodeVectors("not base64!!!", 1, 2)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.ProtocolViolation))

	// Valid base64 that is not zstd.
	_, err = DecodeVectors("aGVsbG8gd29ybGQ=", 1, 2)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.ProtocolViolation))
}
