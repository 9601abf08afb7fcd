package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/schema"
)

const (
	// DefaultBaseURL is the production BulkVS API endpoint.
	DefaultBaseURL = "https://portal.bulkvs.com/api/v1.0"

	// DefaultCNAMLookupURL and DefaultLRNLookupURL are the production
	// lookup hosts. They sit outside the portal API and authenticate
	// with the account's HTTP secret instead of the API credentials.
	// The LRN host is plain HTTP.
	DefaultCNAMLookupURL = "https://cnam.bulkvs.com/"
	DefaultLRNLookupURL  = "http://lrn.bulkvs.com/"

	connectTimeout = 30 * time.Second
	requestTimeout = 60 * time.Second
)

// Config holds HTTP client configuration.
type Config struct {
	// BaseURL of the BulkVS API (default: DefaultBaseURL).
	BaseURL string

	// APIKey and APISecret are the basic-auth credentials.
	APIKey    string
	APISecret string

	// HTTPSecret authenticates the CNAM/LRN lookup hosts. Lookups fail
	// when it is unset; the rest of the client doesn't need it.
	HTTPSecret string

	// CNAMLookupURL and LRNLookupURL override the lookup hosts
	// (defaults: DefaultCNAMLookupURL, DefaultLRNLookupURL).
	CNAMLookupURL string
	LRNLookupURL  string

	// Logger for request activity (default: stderr logger).
	Logger *log.Logger

	// HTTPClient overrides the default client; used in tests.
	HTTPClient *http.Client
}

// HTTPClient is the BulkVS API implementation of Client.
type HTTPClient struct {
	baseURL    string
	key        string
	secret     string
	httpSecret string
	cnamURL    string
	lrnURL     string
	httpc      *http.Client
	logger     *log.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a BulkVS API client.
//
// Requests carry basic auth and JSON content headers, with a 30 second
// connect timeout and a 60 second overall timeout so a hung upstream
// call cannot hold a sync lease much past the staleness threshold.
func NewHTTPClient(config Config) *HTTPClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.CNAMLookupURL == "" {
		config.CNAMLookupURL = DefaultCNAMLookupURL
	}
	if config.LRNLookupURL == "" {
		config.LRNLookupURL = DefaultLRNLookupURL
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[bulkvs] ", log.LstdFlags)
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
			},
		}
	}

	return &HTTPClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		key:        config.APIKey,
		secret:     config.APISecret,
		httpSecret: config.HTTPSecret,
		cnamURL:    strings.TrimRight(config.CNAMLookupURL, "/"),
		lrnURL:     strings.TrimRight(config.LRNLookupURL, "/"),
		httpc:      config.HTTPClient,
		logger:     config.Logger,
	}
}

// FetchNumbers implements Client.FetchNumbers.
func (c *HTTPClient) FetchNumbers(ctx context.Context, trunkGroup string) ([]json.RawMessage, error) {
	query := url.Values{}
	if trunkGroup != "" {
		query.Set("Trunk Group", trunkGroup)
	}
	body, err := c.request(ctx, http.MethodGet, "/tnRecord", query, nil)
	if err != nil {
		return nil, err
	}
	return unwrapList(body)
}

// FetchE911 implements Client.FetchE911.
func (c *HTTPClient) FetchE911(ctx context.Context) ([]json.RawMessage, error) {
	body, err := c.request(ctx, http.MethodGet, "/e911Record", nil, nil)
	if err != nil {
		return nil, err
	}
	return unwrapList(body)
}

// FetchNumber implements Client.FetchNumber.
func (c *HTTPClient) FetchNumber(ctx context.Context, tn string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("Number", tn)
	body, err := c.request(ctx, http.MethodGet, "/tnRecord", query, nil)
	if err != nil {
		return nil, err
	}

	rows, err := unwrapList(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// FetchE911Record implements Client.FetchE911Record.
func (c *HTTPClient) FetchE911Record(ctx context.Context, tn string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("TN", tn)
	body, err := c.request(ctx, http.MethodGet, "/e911Record", query, nil)
	if err != nil {
		return nil, err
	}

	rows, err := unwrapList(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// The endpoint has been seen answering a TN filter with an
	// unrelated record; only a matching row counts as found.
	var row struct {
		TN    string `json:"TN"`
		TNAlt string `json:"tn"`
	}
	if err := json.Unmarshal(rows[0], &row); err != nil {
		return nil, &Error{Kind: KindDecode, Message: fmt.Sprintf("invalid e911 record: %v", err)}
	}
	got := row.TN
	if got == "" {
		got = row.TNAlt
	}
	if schema.CanonicalTN(got) != schema.CanonicalTN(tn) {
		return nil, nil
	}
	return rows[0], nil
}

// UpdateNumber implements Client.UpdateNumber.
func (c *HTTPClient) UpdateNumber(ctx context.Context, tn string, update NumberUpdate) error {
	data := map[string]interface{}{"TN": tn}
	if update.Lidb != nil {
		data["Lidb"] = *update.Lidb
	}
	if update.PortoutPIN != nil {
		data["Portout Pin"] = *update.PortoutPIN
	}
	if update.ReferenceID != nil {
		data["ReferenceID"] = *update.ReferenceID
	}
	if update.SMS != nil {
		data["Sms"] = *update.SMS
	}
	if update.MMS != nil {
		data["Mms"] = *update.MMS
	}

	_, err := c.request(ctx, http.MethodPost, "/tnRecord", nil, data)
	return err
}

// DeleteNumber implements Client.DeleteNumber.
func (c *HTTPClient) DeleteNumber(ctx context.Context, tn string) error {
	query := url.Values{}
	query.Set("Number", tn)
	_, err := c.request(ctx, http.MethodDelete, "/tnRecord", query, nil)
	return err
}

// SaveE911 implements Client.SaveE911.
func (c *HTTPClient) SaveE911(ctx context.Context, tn, callerName, addressID string, sms []string) error {
	data := map[string]interface{}{
		"TN":          tn,
		"Caller Name": callerName,
		"AddressID":   addressID,
	}
	if len(sms) > 0 {
		data["Sms"] = sms
	}

	_, err := c.request(ctx, http.MethodPost, "/e911Record", nil, data)
	return err
}

// DeleteE911 implements Client.DeleteE911.
func (c *HTTPClient) DeleteE911(ctx context.Context, tn string) error {
	query := url.Values{}
	query.Set("Number", tn)
	_, err := c.request(ctx, http.MethodDelete, "/e911Record", query, nil)
	return err
}

// SearchNumbers implements Client.SearchNumbers.
func (c *HTTPClient) SearchNumbers(ctx context.Context, npa, nxx string) ([]json.RawMessage, error) {
	if npa == "" {
		return nil, &Error{Kind: KindRemote, Message: "NPA must be provided"}
	}
	query := url.Values{}
	query.Set("Npa", npa)
	if nxx != "" {
		query.Set("Nxx", nxx)
	}

	body, err := c.request(ctx, http.MethodGet, "/orderTn", query, nil)
	if err != nil {
		return nil, err
	}
	return unwrapList(body)
}

// PurchaseNumber implements Client.PurchaseNumber.
func (c *HTTPClient) PurchaseNumber(ctx context.Context, order PurchaseOrder) error {
	// The order endpoint requires every field present, including an
	// empty Webhook.
	data := map[string]interface{}{
		"TN":          order.TN,
		"Trunk Group": order.TrunkGroup,
		"Lidb":        strings.TrimSpace(order.Lidb),
		"Portout Pin": strings.TrimSpace(order.PortoutPIN),
		"ReferenceID": strings.TrimSpace(order.ReferenceID),
		"Sms":         false,
		"Mms":         false,
		"Webhook":     "",
	}

	_, err := c.request(ctx, http.MethodPost, "/orderTn", nil, data)
	return err
}

// ValidateAddress implements Client.ValidateAddress.
func (c *HTTPClient) ValidateAddress(ctx context.Context, addr Address) (*AddressValidation, error) {
	body, err := c.request(ctx, http.MethodPost, "/validateAddress", nil, addr)
	if err != nil {
		return nil, err
	}

	var result AddressValidation
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &Error{Kind: KindDecode, Message: fmt.Sprintf("invalid validateAddress response: %v", err)}
	}
	return &result, nil
}

// LookupCNAM implements Client.LookupCNAM.
// The CNAM host answers in plain text, not JSON.
func (c *HTTPClient) LookupCNAM(ctx context.Context, tn string) (string, error) {
	did, err := c.lookupDID(tn)
	if err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("id", c.httpSecret)
	query.Set("did", did)

	body, err := c.lookupGet(ctx, c.cnamURL+"/?"+query.Encode())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// LookupLRN implements Client.LookupLRN.
func (c *HTTPClient) LookupLRN(ctx context.Context, tn string) (json.RawMessage, error) {
	did, err := c.lookupDID(tn)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("id", c.httpSecret)
	query.Set("did", did)
	query.Set("ani", did)
	query.Set("format", "json")

	body, err := c.lookupGet(ctx, c.lrnURL+"/?"+query.Encode())
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &Error{Kind: KindDecode, Message: fmt.Sprintf("invalid LRN response: %s", truncate(string(body), 200))}
	}
	return json.RawMessage(body), nil
}

// lookupDID validates lookup preconditions and reduces tn to the
// 10-digit form the lookup hosts expect, dropping a leading US country
// code.
func (c *HTTPClient) lookupDID(tn string) (string, error) {
	if c.httpSecret == "" {
		return "", &Error{Kind: KindAuth, Message: "http_secret is not configured"}
	}

	did := schema.CanonicalTN(tn)
	if len(did) == 11 && did[0] == '1' {
		did = did[1:]
	}
	if len(did) != 10 {
		return "", &Error{Kind: KindRemote, Message: fmt.Sprintf("lookup number must be 10 digits, got %q", tn)}
	}
	return did, nil
}

// lookupGet performs one call against a lookup host. The hosts carry no
// basic auth; the secret travels in the query string.
func (c *HTTPClient) lookupGet(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build lookup request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}
	if resp.StatusCode >= 400 {
		return nil, &Error{Kind: KindRemote, HTTPStatus: resp.StatusCode, Message: truncate(strings.TrimSpace(string(body)), 200)}
	}
	return body, nil
}

// request performs one API call and returns the raw response body.
// An empty body on a 2xx response returns nil without error; some
// endpoints return no content on success.
func (c *HTTPClient) request(ctx context.Context, method, endpoint string, query url.Values, body interface{}) (json.RawMessage, error) {
	u := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.key, c.secret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &Error{Kind: KindAuth, HTTPStatus: resp.StatusCode, Message: remoteMessage(data)}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		if resp.StatusCode >= 400 {
			return nil, &Error{Kind: KindRemote, HTTPStatus: resp.StatusCode, Message: resp.Status}
		}
		return nil, nil
	}

	if !json.Valid(data) {
		return nil, &Error{
			Kind:       KindDecode,
			HTTPStatus: resp.StatusCode,
			Message:    fmt.Sprintf("invalid JSON response: %s", truncate(string(data), 200)),
		}
	}

	if resp.StatusCode >= 400 {
		return nil, &Error{Kind: KindRemote, HTTPStatus: resp.StatusCode, Message: remoteMessage(data)}
	}

	return json.RawMessage(data), nil
}

// remoteMessage extracts a human-readable error from the provider's
// response. The API is inconsistent about which field carries it.
func remoteMessage(data []byte) string {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return truncate(string(data), 200)
	}

	if msg, ok := doc["message"].(string); ok && msg != "" {
		return msg
	}
	if code, ok := doc["Code"]; ok {
		if desc, ok := doc["Description"].(string); ok && desc != "" {
			return fmt.Sprintf("code %v: %s", code, desc)
		}
	}
	if desc, ok := doc["Description"].(string); ok && desc != "" {
		return desc
	}
	if msg, ok := doc["error"].(string); ok && msg != "" {
		return msg
	}
	return truncate(string(data), 200)
}

// unwrapList extracts the record list from a snapshot response.
// The API returns either a bare array or an object wrapping it in a
// "data" field, depending on endpoint revision.
func unwrapList(body json.RawMessage) ([]json.RawMessage, error) {
	if len(body) == 0 {
		return []json.RawMessage{}, nil
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, &Error{Kind: KindDecode, Message: fmt.Sprintf("invalid snapshot array: %v", err)}
		}
		return list, nil
	}

	var wrapper struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, &Error{Kind: KindDecode, Message: fmt.Sprintf("invalid snapshot response: %v", err)}
	}
	if wrapper.Data == nil {
		return []json.RawMessage{}, nil
	}
	return wrapper.Data, nil
}

// truncate caps s at n bytes for log/error hygiene.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
