package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/steamset/monitor"
)

func TestNew_RegistersInstruments(t *testing.T) {
	m := New()
	m.ImportedRows.WithLabelValues("applications").Add(3)
	m.Discrepancies.WithLabelValues("mat_final_price").Set(2)

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] += metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 3.0, values["steamset_import_rows_total"])
	assert.Equal(t, 2.0, values["steamset_materialize_discrepancies"])
}

func TestHandler_ServesExposition(t *testing.T) {
	m := New()
	m.EmbeddedRows.WithLabelValues("applications").Add(10)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `steamset_embed_rows_total{target="applications"} 10`)
}

func TestRecordSnapshot(t *testing.T) {
	m := New()
	util := 55.0
	m.RecordSnapshot(monitor.Snapshot{CPUPercent: 12.5, RAMPercent: 40, GPUUtilPercent: &util})

	assert.Equal(t, 12.5, testutil.ToFloat64(m.CPUPercent))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.RAMPercent))
	assert.Equal(t, 55.0, testutil.ToFloat64(m.GPUUtilPercent))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.GPUTempCelsius))
}
