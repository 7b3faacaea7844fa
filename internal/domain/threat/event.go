// Package threat builds the canonical malicious-event records reported
// to the threat backend.
package threat

import (
	"encoding/json"
	"strconv"
	"time"
)

// Event is the wire form of a malicious event.
type Event struct {
	Actor                 string            `json:"actor"`
	FilterID              string            `json:"filterId"`
	DetectedAt            string            `json:"detectedAt"`
	LatestAPIIP           string            `json:"latestApiIp"`
	LatestAPIEndpoint     string            `json:"latestApiEndpoint"`
	LatestAPIMethod       string            `json:"latestApiMethod"`
	LatestAPICollectionID int64             `json:"latestApiCollectionId"`
	LatestAPIPayload      string            `json:"latestApiPayload"`
	EventType             string            `json:"eventType"`
	Category              string            `json:"category"`
	SubCategory           string            `json:"subCategory"`
	Severity              string            `json:"severity"`
	Type                  string            `json:"type"`
	Metadata              map[string]string `json:"metadata"`
}

// Input collects everything needed to build an Event.
type Input struct {
	// PolicyID is the originating policy id; the threat backend groups
	// recurrences by it.
	PolicyID string

	// IP is the actor (client) IP.
	IP string

	// Endpoint and Method describe the mirrored API call.
	Endpoint string
	Method   string

	// RequestPayload / ResponsePayload are the raw payloads involved.
	RequestPayload  string
	ResponsePayload string

	RequestHeaders  map[string]string
	ResponseHeaders map[string]string

	StatusCode int
}

// apiPayload is the JSON document stored in LatestAPIPayload. The field
// set mirrors the ingestion record format of the threat backend.
type apiPayload struct {
	Method          string `json:"method"`
	RequestPayload  string `json:"requestPayload"`
	ResponsePayload string `json:"responsePayload"`
	IP              string `json:"ip"`
	DestIP          string `json:"destIp"`
	Source          string `json:"source"`
	Type            string `json:"type"`
	AktoVxlanID     string `json:"akto_vxlan_id"`
	Path            string `json:"path"`
	RequestHeaders  string `json:"requestHeaders"`
	ResponseHeaders string `json:"responseHeaders"`
	Time            int64  `json:"time"`
	AktoAccountID   string `json:"akto_account_id"`
	StatusCode      int    `json:"statusCode"`
	Status          string `json:"status"`
}

// Defaults applied when the input leaves fields empty.
const (
	defaultMethod     = "POST"
	defaultIP         = "unknown"
	defaultPath       = "/mcp/unknown"
	defaultStatusCode = 200
)

// BuildEvent constructs the canonical malicious event for a blocked or
// redacted payload.
//
// DetectedAt and LatestAPICollectionID both carry the current unix
// second; the duplicated collection id is relied upon by the threat
// backend and must be preserved.
func BuildEvent(in Input) Event {
	now := time.Now().Unix()

	ip := in.IP
	if ip == "" {
		ip = defaultIP
	}
	method := in.Method
	if method == "" {
		method = defaultMethod
	}
	endpoint := in.Endpoint
	if endpoint == "" {
		endpoint = defaultPath
	}
	statusCode := in.StatusCode
	if statusCode == 0 {
		statusCode = defaultStatusCode
	}

	payload := apiPayload{
		Method:          method,
		RequestPayload:  in.RequestPayload,
		ResponsePayload: in.ResponsePayload,
		IP:              ip,
		DestIP:          ip,
		Source:          "OTHER",
		Type:            "http",
		Path:            endpoint,
		RequestHeaders:  marshalHeaders(in.RequestHeaders),
		ResponseHeaders: marshalHeaders(in.ResponseHeaders),
		StatusCode:      statusCode,
		Status:          "OK",
	}
	payloadJSON, _ := json.Marshal(payload)

	return Event{
		Actor:                 ip,
		FilterID:              in.PolicyID,
		DetectedAt:            strconv.FormatInt(now, 10),
		LatestAPIIP:           ip,
		LatestAPIEndpoint:     endpoint,
		LatestAPIMethod:       method,
		LatestAPICollectionID: now,
		LatestAPIPayload:      string(payloadJSON),
		EventType:             "EVENT_TYPE_SINGLE",
		Category:              in.PolicyID,
		SubCategory:           in.PolicyID,
		Severity:              "CRITICAL",
		Type:                  "Rule-Based",
		Metadata:              map[string]string{"countryCode": "IN"},
	}
}

// marshalHeaders renders headers as a JSON object string, with "{}"
// for empty maps.
func marshalHeaders(h map[string]string) string {
	if len(h) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
