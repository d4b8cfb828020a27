package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/queryflow/checkpoint"
	"github.com/BaSui01/queryflow/lifecycle"
)

// =============================================================================
// 🧪 Qdrant 辅助函数测试
// =============================================================================

func TestParseQdrantURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		host    string
		port    int
		tls     bool
		wantErr bool
	}{
		{name: "rest port maps to grpc", raw: "http://localhost:6333", host: "localhost", port: 6334},
		{name: "explicit grpc port", raw: "http://qdrant:6334", host: "qdrant", port: 6334},
		{name: "custom port", raw: "https://xyz.cloud.qdrant.io:7000", host: "xyz.cloud.qdrant.io", port: 7000, tls: true},
		{name: "no port", raw: "https://xyz.cloud.qdrant.io", host: "xyz.cloud.qdrant.io", port: 6334, tls: true},
		{name: "missing scheme", raw: "localhost", wantErr: true},
		{name: "bad port", raw: "http://localhost:abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, useTLS, err := parseQdrantURL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
			assert.Equal(t, tt.tls, useTLS)
		})
	}
}

func TestPointID_Deterministic(t *testing.T) {
	a := PointID(checkpoint.Key("q1", 100))
	b := PointID(checkpoint.Key("q1", 100))
	c := PointID(checkpoint.Key("q1", 101))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 5, int(a.Version()))
}

func TestPayloadRoundTrip(t *testing.T) {
	rec := checkpoint.Record{
		Key:       checkpoint.Key("q1", 1700000000000),
		QueryID:   "q1",
		Timestamp: 1700000000000,
		Phase:     lifecycle.PhasePaused,
		Data:      []byte(`{"query_id":"q1"}`),
	}

	payload := qdrant.NewValueMap(recordPayload(rec))
	got, err := recordFromPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)
}

func TestRecordFromPayload_Incomplete(t *testing.T) {
	_, err := recordFromPayload(qdrant.NewValueMap(map[string]any{fieldKey: "q1:1"}))
	assert.Error(t, err)

	_, err = recordFromPayload(map[string]*qdrant.Value{})
	assert.Error(t, err)
}

func TestNewQdrantStore_Validation(t *testing.T) {
	_, err := NewQdrantStore(QdrantConfig{URL: "http://localhost:6333"}, nil)
	assert.Error(t, err, "collection is required")

	_, err = NewQdrantStore(QdrantConfig{URL: "::bad", Collection: "c"}, nil)
	assert.Error(t, err)
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{1, 0.5, -2}, toFloat32([]float64{1, 0.5, -2}))
	assert.Empty(t, toFloat32(nil))
}
