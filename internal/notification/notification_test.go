package notification

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyError_PostsToSlack(t *testing.T) {
	bodies := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- b
	}))
	defer server.Close()

	logger, hook := test.NewNullLogger()
	n := New(logger, server.URL)
	n.NotifyError("settlement batch failed", errors.New("bank 012 offline"))

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	select {
	case b := <-bodies:
		var payload map[string][]map[string]interface{}
		require.NoError(t, json.Unmarshal(b, &payload))
		assert.Len(t, payload["blocks"], 3)
		assert.Contains(t, string(b), "bank 012 offline")
	case <-time.After(2 * time.Second):
		t.Fatal("slack webhook was not called")
	}
}

func TestNotifyError_WithoutSlackOnlyLogs(t *testing.T) {
	logger, hook := test.NewNullLogger()
	New(logger, "").NotifyError("ledger commit failed", errors.New("boom"))

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "ledger commit failed", hook.LastEntry().Message)
}
