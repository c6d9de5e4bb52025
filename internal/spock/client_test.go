package spock

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spock-ems/growatt2spock/pkg/growatt_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSnapshot() *growatt_modbus.Telemetry {
	return &growatt_modbus.Telemetry{
		BatterySOC:       45,
		BatteryPowerWatt: -200,
		PVPowerWatt:      3000,
		GridPowerWatt:    50,
		HouseLoadWatt:    3250,
		NominalPowerKW:   6,
	}
}

func newTestClient(url string) *Client {
	return NewClient(url, "secret-token", "spock-42", "plant-7", zap.NewNop())
}

func TestPushPayloadAndHeaders(t *testing.T) {
	var gotPayload map[string]string
	var gotAuth, gotSpockID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotSpockID = r.Header.Get("Spock-Id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	directive := newTestClient(server.URL).Push(testSnapshot())
	assert.Nil(t, directive)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "spock-42", gotSpockID)
	assert.Equal(t, map[string]string{
		"plant_id":                 "plant-7",
		"bat_soc":                  "45",
		"bat_power":                "-200",
		"pv_power":                 "3000",
		"ongrid_power":             "50",
		"bat_charge_allowed":       "true",
		"bat_discharge_allowed":    "true",
		"bat_capacity":             "0",
		"total_grid_output_energy": "0",
	}, gotPayload)
}

func TestPushParsesDirective(t *testing.T) {
	cases := []struct {
		name      string
		body      string
		wantWatts *float64
		wantMode  string
	}{
		{"numeric action", `{"status":"ok","operation_mode":"charge","action":2500}`, f64(2500), "charge"},
		{"string action", `{"status":"ok","operation_mode":"discharge","action":"1800"}`, f64(1800), "discharge"},
		{"null action", `{"status":"ok","operation_mode":"auto","action":null}`, nil, "auto"},
		{"absent action", `{"status":"ok","operation_mode":"none"}`, nil, "none"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			directive := newTestClient(server.URL).Push(testSnapshot())
			require.NotNil(t, directive)
			assert.Equal(t, "ok", directive.Status)
			assert.Equal(t, tc.wantMode, directive.OperationMode)
			if tc.wantWatts == nil {
				assert.Nil(t, directive.ActionWatts)
			} else {
				require.NotNil(t, directive.ActionWatts)
				assert.Equal(t, *tc.wantWatts, *directive.ActionWatts)
			}
		})
	}
}

func TestPushDegradesToNoDirective(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()
		assert.Nil(t, newTestClient(server.URL).Push(testSnapshot()))
	})

	t.Run("malformed reply body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{not json`))
		}))
		defer server.Close()
		assert.Nil(t, newTestClient(server.URL).Push(testSnapshot()))
	})

	t.Run("empty reply body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()
		assert.Nil(t, newTestClient(server.URL).Push(testSnapshot()))
	})

	t.Run("endpoint unreachable", func(t *testing.T) {
		assert.Nil(t, newTestClient("http://127.0.0.1:1/push").Push(testSnapshot()))
	})

	t.Run("action of unexpected type", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"ok","operation_mode":"charge","action":{"w":1}}`))
		}))
		defer server.Close()
		assert.Nil(t, newTestClient(server.URL).Push(testSnapshot()))
	})
}

func f64(v float64) *float64 {
	return &v
}
