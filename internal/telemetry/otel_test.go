package telemetry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/notifyd/internal/storage"
	"github.com/shaharia-lab/notifyd/internal/telemetry"
)

func TestSetupOTel_WithoutEndpoint(t *testing.T) {
	ctx := context.Background()
	m := telemetry.NewMetrics(nil)

	o, err := telemetry.SetupOTel(ctx, telemetry.OTelConfig{ServiceName: "notifyd", Version: "test"}, m.Registry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Shutdown(ctx) })

	assert.Nil(t, o.LogHandler())
	require.NoError(t, m.InstrumentLatency(o.Meter()))

	created := time.Now().Add(-2 * time.Second)
	m.Delivered(ctx, &storage.DeliveryRecord{
		Channel:   "mail",
		Status:    storage.DeliverySent,
		CreatedAt: created,
		UpdatedAt: created.Add(1500 * time.Millisecond),
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "notifyd_delivery_duration")
	assert.Contains(t, rec.Body.String(), `channel="mail"`)
}

func TestMetrics_DeliveredWithoutLatencyInstrument(t *testing.T) {
	m := telemetry.NewMetrics(nil)
	assert.NotPanics(t, func() {
		m.Delivered(context.Background(), &storage.DeliveryRecord{Channel: "sms", Status: storage.DeliveryFailed})
	})
}
