package solark

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Fetch performs one telemetry cycle for a plant: it lists the plant's
// inverters, reads live telemetry for the first one, and overlays the
// power-flow summary. The single-inverter selection is a documented
// limitation, not a defect: multi-inverter plants are not aggregated.
func (c *Client) Fetch(ctx context.Context, plantID string) (RawRecord, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	invURL := fmt.Sprintf("%s/api/v1/plant/%s/inverters?page=1&limit=10&stationId=%s&status=-1&sn=&type=-2",
		c.apiBase, url.PathEscape(plantID), url.QueryEscape(plantID))
	invResp, err := c.doJSON(ctx, http.MethodGet, invURL, nil, true, c.fetchTimeout, "inverter list")
	if err != nil {
		return nil, err
	}
	if err := checkEnvelope(invResp, "inverter list"); err != nil {
		return nil, err
	}

	invData, _ := invResp["data"].(map[string]any)
	inverters := deviceList(invData)
	if len(inverters) == 0 {
		// Absence of hardware is not a transport error.
		c.log.Warn().Str("plant", plantID).Msg("no inverters found")
		return RawRecord{}, nil
	}
	first, _ := inverters[0].(map[string]any)
	sn := stringField(first, "sn", "deviceSn")
	if sn == "" {
		c.log.Warn().Str("plant", plantID).Msg("first inverter has no serial")
		return RawRecord{}, nil
	}

	liveURL := fmt.Sprintf("%s/api/v1/dy/store/%s/read", c.apiBase, url.PathEscape(sn))
	liveResp, err := c.doJSON(ctx, http.MethodGet, liveURL, nil, true, c.fetchTimeout, "live telemetry")
	if err != nil {
		return nil, err
	}
	if err := checkEnvelope(liveResp, "live telemetry"); err != nil {
		return nil, err
	}

	record := RawRecord{}
	if data, ok := liveResp["data"].(map[string]any); ok {
		for k, v := range data {
			record[k] = v
		}
	} else {
		for k, v := range liveResp {
			record[k] = v
		}
	}

	// Energy stats from the inverter summary fill gaps only; live data wins
	// ties.
	if v, ok := first["etoday"]; ok && v != nil {
		if _, present := record["energyToday"]; !present {
			record["energyToday"] = v
		}
	}
	if v, ok := first["etotal"]; ok && v != nil {
		if _, present := record["energyTotal"]; !present {
			record["energyTotal"] = v
		}
	}

	// Flow data is an enhancement, not a requirement: failures are logged
	// and the cycle continues. Within its allow-listed keys, flow wins ties.
	flow, err := c.flow(ctx, plantID)
	if err != nil {
		c.log.Warn().Str("plant", plantID).Err(err).Msg("power-flow fetch failed, continuing without it")
	} else {
		for _, key := range flowKeys {
			if v, ok := flow[key]; ok && v != nil {
				record[key] = v
			}
		}
	}

	return record, nil
}

func (c *Client) flow(ctx context.Context, plantID string) (map[string]any, error) {
	date := c.now().UTC().Format("2006-01-02")
	flowURL := fmt.Sprintf("%s/api/v1/plant/energy/%s/flow?date=%s", c.apiBase, url.PathEscape(plantID), date)
	resp, err := c.doJSON(ctx, http.MethodGet, flowURL, nil, true, c.fetchTimeout, "power flow")
	if err != nil {
		return nil, err
	}
	if err := checkEnvelope(resp, "power flow"); err != nil {
		return nil, err
	}
	if data, ok := resp["data"].(map[string]any); ok {
		return data, nil
	}
	return resp, nil
}

// PlantData calls the classic getPlantData endpoint used by older plants
// whose payloads carry direct power fields.
func (c *Client) PlantData(ctx context.Context, plantID string) (RawRecord, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	payload := map[string]string{"plantId": plantID}
	resp, err := c.doJSON(ctx, http.MethodPost, c.baseURL+plantDataEndpoint, payload, true, c.fetchTimeout, "plant data")
	if err != nil {
		return nil, err
	}

	if flagFalse(resp, "success") || flagFalse(resp, "Success") {
		msg := envelopeMessage(resp)
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "token") || strings.Contains(lower, "auth") {
			c.InvalidateToken()
			return nil, &AuthError{Message: "authentication error: " + msg}
		}
		return nil, &APIError{Message: "plant data: " + msg}
	}

	for _, key := range []string{"data", "Data", "result"} {
		if data, ok := resp[key].(map[string]any); ok {
			if len(data) == 0 {
				return nil, &APIError{Message: fmt.Sprintf("no plant data returned for plant %s", plantID)}
			}
			return RawRecord(data), nil
		}
	}
	if len(resp) == 0 {
		return nil, &APIError{Message: fmt.Sprintf("no plant data returned for plant %s", plantID)}
	}
	return RawRecord(resp), nil
}

// deviceList digs the inverter array out of the paged list envelope, which
// names it differently across API generations.
func deviceList(data map[string]any) []any {
	for _, key := range []string{"infos", "list", "records"} {
		if list, ok := data[key].([]any); ok && len(list) > 0 {
			return list
		}
	}
	return nil
}

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
