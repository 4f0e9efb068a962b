package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landregistry/internal/registry/models"
	id "landregistry/pkg/domain"
)

func TestPublishLogsEachEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := New(slog.New(slog.NewJSONHandler(&buf, nil)))
	tokenID := id.TokenID(4)
	e := models.NewEvent(models.EventTrustRecorded, &tokenID, "0xseller", time.Now(), nil)
	e.Sequence = 9

	require.NoError(t, sink.Publish(context.Background(), []models.Event{e}))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "TrustRecorded", entry["type"])
	assert.Equal(t, "4", entry["token_id"])
	assert.Equal(t, float64(9), entry["sequence"])
	assert.Equal(t, "log", sink.Name())
}
