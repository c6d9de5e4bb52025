package spock

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/spock-ems/growatt2spock/internal/core/domain"
	"github.com/spock-ems/growatt2spock/pkg/growatt_modbus"

	"go.uber.org/zap"
)

const (
	pushTimeout = 10 * time.Second

	headerSpockID = "Spock-Id"
)

// Client pushes telemetry to the Spock EMS endpoint and parses the optional
// directive reply. Publishing is best-effort: a failed push must never fail
// the polling cycle, so every transport, status and parse problem degrades
// to "no directive this cycle".
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiToken   string
	spockID    string
	plantID    string
	logger     *zap.Logger
}

func NewClient(endpoint, apiToken, spockID, plantID string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: pushTimeout},
		endpoint:   endpoint,
		apiToken:   apiToken,
		spockID:    spockID,
		plantID:    plantID,
		logger:     logger,
	}
}

// pushPayload is the flattened, all-string-encoded projection of a snapshot.
type pushPayload struct {
	PlantID               string `json:"plant_id"`
	BatSOC                string `json:"bat_soc"`
	BatPower              string `json:"bat_power"`
	PVPower               string `json:"pv_power"`
	OngridPower           string `json:"ongrid_power"`
	BatChargeAllowed      string `json:"bat_charge_allowed"`
	BatDischargeAllowed   string `json:"bat_discharge_allowed"`
	BatCapacity           string `json:"bat_capacity"`
	TotalGridOutputEnergy string `json:"total_grid_output_energy"`
}

type directiveReply struct {
	Status        string     `json:"status"`
	OperationMode string     `json:"operation_mode"`
	Action        *wattValue `json:"action"`
}

// wattValue accepts the action field as a JSON number or a numeric string.
type wattValue float64

func (w *wattValue) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*w = wattValue(num)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("action is neither number nor string: %s", data)
	}
	num, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return fmt.Errorf("action string is not numeric: %w", err)
	}
	*w = wattValue(num)
	return nil
}

// Push submits one snapshot. A nil return means "no directive this cycle",
// whatever the reason.
func (c *Client) Push(snapshot *growatt_modbus.Telemetry) *domain.RemoteDirective {
	body, err := json.Marshal(c.buildPayload(snapshot))
	if err != nil {
		c.logger.Error("spock: payload marshal failed", zap.Error(err))
		return nil
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("spock: request build failed", zap.Error(err))
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set(headerSpockID, c.spockID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("spock: push failed", zap.Error(err))
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("spock: push rejected", zap.Int("status", resp.StatusCode))
		return nil
	}

	replyBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil || len(replyBody) == 0 {
		return nil
	}
	var reply directiveReply
	if err := json.Unmarshal(replyBody, &reply); err != nil {
		c.logger.Warn("spock: reply is not valid JSON, ignoring", zap.Error(err))
		return nil
	}

	directive := &domain.RemoteDirective{
		Status:        reply.Status,
		OperationMode: reply.OperationMode,
	}
	if reply.Action != nil {
		watts := float64(*reply.Action)
		directive.ActionWatts = &watts
	}
	c.logger.Debug("spock: directive received",
		zap.String("status", directive.Status),
		zap.String("operation_mode", directive.OperationMode))
	return directive
}

func (c *Client) buildPayload(snapshot *growatt_modbus.Telemetry) pushPayload {
	return pushPayload{
		PlantID:               c.plantID,
		BatSOC:                intString(float64(snapshot.BatterySOC)),
		BatPower:              intString(snapshot.BatteryPowerWatt),
		PVPower:               intString(snapshot.PVPowerWatt),
		OngridPower:           intString(snapshot.GridPowerWatt),
		BatChargeAllowed:      "true",
		BatDischargeAllowed:   "true",
		BatCapacity:           "0",
		TotalGridOutputEnergy: "0",
	}
}

// intString renders a value as a decimal-string integer, rounded half away
// from zero.
func intString(v float64) string {
	return strconv.Itoa(int(math.Round(v)))
}
