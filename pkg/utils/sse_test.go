package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendSSEEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)

	require.NoError(t, SendSSEEvent(rec, rec, "state", map[string]string{"state": "idle"}))
	require.NoError(t, SendSSEComment(rec, rec, "heartbeat"))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "event: state\ndata: {\"state\":\"idle\"}\n\n: heartbeat\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestSendSSEEventRejectsUnencodable(t *testing.T) {
	rec := httptest.NewRecorder()
	assert.Error(t, SendSSEEvent(rec, rec, "bad", func() {}))
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusConflict, "busy")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"busy"}`, rec.Body.String())
}
