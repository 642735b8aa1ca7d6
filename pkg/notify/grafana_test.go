package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOptions = HTTPOptions{Timeout: time.Second, RetryAttempts: 3, RetryDelay: time.Millisecond}

var testSample = Sample{
	Name:     "azure.vm.spot-01.up",
	Value:    1,
	Time:     time.Unix(1700000000, 0),
	Interval: 60 * time.Second,
}

func TestGrafanaSink_JSONPayload(t *testing.T) {
	var (
		body        []byte
		contentType string
		user, pass  string
		basicOK     bool
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		contentType = r.Header.Get("Content-Type")
		user, pass, basicOK = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewGrafanaSink(GrafanaConfig{URL: server.URL, User: "12345", Token: "glc_token"}, testOptions, newRecordingLogger())
	sink.Push(context.Background(), testSample)

	assert.Equal(t, "application/json", contentType)
	require.True(t, basicOK)
	assert.Equal(t, "12345", user)
	assert.Equal(t, "glc_token", pass)

	var payload []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload, 1)
	assert.Equal(t, map[string]interface{}{
		"name":     "azure.vm.spot-01.up",
		"value":    float64(1),
		"time":     float64(1700000000),
		"interval": float64(60),
	}, payload[0])
}

func TestGrafanaSink_GraphiteFormat(t *testing.T) {
	var body []byte
	var contentType, authorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		contentType = r.Header.Get("Content-Type")
		authorization = r.Header.Get("Authorization")
	}))
	defer server.Close()

	sink := NewGrafanaSink(GrafanaConfig{URL: server.URL, Token: "glc_token", Format: MetricsFormatGraphite}, testOptions, newRecordingLogger())
	sample := testSample
	sample.Value = 0
	sink.Push(context.Background(), sample)

	assert.Equal(t, "azure.vm.spot-01.up 0 1700000000", string(body))
	assert.Equal(t, "text/plain", contentType)
	assert.Equal(t, "Bearer glc_token", authorization)
}

func TestGrafanaSink_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	logger := newRecordingLogger()
	sink := NewGrafanaSink(GrafanaConfig{URL: server.URL}, testOptions, logger)
	sink.Push(context.Background(), testSample)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Empty(t, logger.get("error"))
}

func TestGrafanaSink_SwallowsClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	logger := newRecordingLogger()
	sink := NewGrafanaSink(GrafanaConfig{URL: server.URL}, testOptions, logger)

	assert.NotPanics(t, func() { sink.Push(context.Background(), testSample) })
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Len(t, logger.get("error"), 1)
	assert.Contains(t, logger.get("error")[0], "401")
}

func TestGrafanaSink_SwallowsTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	logger := newRecordingLogger()
	sink := NewGrafanaSink(GrafanaConfig{URL: url}, testOptions, logger)

	assert.NotPanics(t, func() { sink.Push(context.Background(), testSample) })
	assert.Len(t, logger.get("error"), 1)
}

func TestGrafanaSink_Unconfigured(t *testing.T) {
	logger := newRecordingLogger()
	sink := NewGrafanaSink(GrafanaConfig{}, testOptions, logger)

	assert.Equal(t, NopMetricsSink(), sink)
	sink.Push(context.Background(), testSample)
	assert.Empty(t, logger.get("error"))
	assert.Empty(t, logger.get("warn"))
}

func TestEncodeSample_UnsupportedFormat(t *testing.T) {
	_, _, err := encodeSample(MetricsFormat("influx"), testSample)
	assert.Error(t, err)
}
