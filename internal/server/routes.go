package server

import (
	"net/http"
	"time"

	"github.com/spock-ems/growatt2spock/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/snapshot", s.SnapshotHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.bridgeActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

type snapshotPayload struct {
	BatterySOC       int     `json:"battery_soc"`
	BatteryPowerWatt float64 `json:"battery_power_watt"`
	PVPowerWatt      float64 `json:"pv_power_watt"`
	GridPowerWatt    float64 `json:"grid_power_watt"`
	HouseLoadWatt    float64 `json:"house_load_watt"`
	NominalPowerKW   float64 `json:"nominal_power_kw"`
	CycleTime        string  `json:"cycle_time"`
}

func (s *Server) SnapshotHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.bridgeActor, domain.GetSnapshotRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "snapshot: FAIL")
	}
	response, ok := res.(domain.GetSnapshotResponse)
	if !ok {
		return c.String(http.StatusServiceUnavailable, "snapshot: FAIL")
	}
	if response.Snapshot == nil {
		// no cycle has completed yet
		return c.String(http.StatusServiceUnavailable, "snapshot: NOT_READY")
	}
	return c.JSON(http.StatusOK, snapshotPayload{
		BatterySOC:       response.Snapshot.BatterySOC,
		BatteryPowerWatt: response.Snapshot.BatteryPowerWatt,
		PVPowerWatt:      response.Snapshot.PVPowerWatt,
		GridPowerWatt:    response.Snapshot.GridPowerWatt,
		HouseLoadWatt:    response.Snapshot.HouseLoadWatt,
		NominalPowerKW:   response.Snapshot.NominalPowerKW,
		CycleTime:        response.CycleTime.UTC().Format(time.RFC3339),
	})
}
