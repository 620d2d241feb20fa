package store

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeVectorLittleEndianFloat32(t *testing.T) {
	buf := encodeVector([]float32{1, -0.5})
	require.Len(t, buf, 8)

	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])))
	assert.Equal(t, float32(-0.5), math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])))
}

func TestParseSearchResults(t *testing.T) {
	reply := []interface{}{
		int64(2),
		"vec:id-1", []interface{}{"text", "first chunk", "source", "doc1", "score", "0.1"},
		"vec:id-2", []interface{}{"text", "second chunk", "source", "doc2", "score", "0.4"},
	}

	points, err := parseSearchResults(reply)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "vec:id-1", points[0].ID)
	assert.Equal(t, "first chunk", points[0].Payload.Text)
	assert.Equal(t, "doc1", points[0].Payload.Source)
	assert.InDelta(t, 0.9, points[0].Score, 1e-6)
	assert.InDelta(t, 0.6, points[1].Score, 1e-6)
}

func TestParseSearchResultsEmptyReply(t *testing.T) {
	points, err := parseSearchResults([]interface{}{int64(0)})
	require.NoError(t, err)
	assert.Empty(t, points)

	_, err = parseSearchResults("nonsense")
	assert.Error(t, err)
}

func TestEscapeTag(t *testing.T) {
	assert.Equal(t, `report\.pdf`, escapeTag("report.pdf"))
	assert.Equal(t, `my\ file\,v2`, escapeTag("my file,v2"))
	assert.Equal(t, "plain", escapeTag("plain"))
}
