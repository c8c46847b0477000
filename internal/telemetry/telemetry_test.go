package telemetry

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/voicenotes/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_ExposesMetricsOverPrometheus(t *testing.T) {
	ctx := context.Background()
	tel, err := Setup(ctx, Config{ServiceName: "voicenotes-test", Environment: "test"}, logging.Nop{})
	require.NoError(t, err)
	defer func() { require.NoError(t, tel.Shutdown(ctx)) }()

	counter, err := tel.MeterProvider.Meter("test").Int64Counter("voicenotes.test.hits")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	rr := httptest.NewRecorder()
	tel.MetricsHandler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Contains(t, string(body), "voicenotes_test_hits_total")
}

func TestSetup_StdoutTraces(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	tel, err := Setup(ctx, Config{ServiceName: "voicenotes-test", StdoutTraces: true, TraceWriter: &buf}, nil)
	require.NoError(t, err)

	_, span := tel.TracerProvider.Tracer("test").Start(ctx, "upload")
	span.End()

	require.NoError(t, tel.Shutdown(ctx))
	assert.Contains(t, buf.String(), `"Name": "upload"`)
	assert.NoError(t, tel.Shutdown(ctx))
}

func TestSetup_NoTracingByDefault(t *testing.T) {
	ctx := context.Background()
	tel, err := Setup(ctx, Config{ServiceName: "voicenotes-test"}, nil)
	require.NoError(t, err)
	defer tel.Shutdown(ctx)

	_, span := tel.TracerProvider.Tracer("test").Start(ctx, "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}
