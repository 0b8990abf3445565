// Package neviweb polls the smart-thermostat cloud for per-room temperature
// and energy. The cloud API is an opaque collaborator behind the Client
// interface; only login, topology discovery, attribute polling, the 24-hour
// stats endpoint, and logout are consumed.
package neviweb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Network is a gateway account entry (the cloud calls these "networks").
type Network struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Group is a room grouping of devices.
type Group struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Device is one thermostat or load controller.
type Device struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	GroupID int    `json:"groupId"`
}

// Client is the cloud contract the adapter consumes.
type Client interface {
	Login(ctx context.Context) error
	Networks(ctx context.Context) ([]Network, error)
	Groups(ctx context.Context, networkID int) ([]Group, error)
	Devices(ctx context.Context, networkID int) ([]Device, error)
	// DeviceAttributes bulk-reads the named attributes for one device.
	DeviceAttributes(ctx context.Context, deviceID int, attrs []string) (map[string]float64, error)
	// DeviceHourlyStats returns the last 24 hourly consumption datapoints in
	// watt-hours, oldest first.
	DeviceHourlyStats(ctx context.Context, deviceID int) ([]float64, error)
	Logout(ctx context.Context) error
}

// httpClient is the thin HTTP implementation of Client.
type httpClient struct {
	baseURL   string
	username  string
	password  string
	client    *http.Client
	sessionID string
}

// NewClient creates a cloud API client.
func NewClient(baseURL, username, password string, timeout time.Duration) Client {
	return &httpClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)
	form.Set("interface", "neviweb")
	form.Set("stayConnected", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result struct {
		Session string `json:"session"`
		Error   *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := c.do(req, &result); err != nil {
		return err
	}
	if result.Error != nil {
		switch result.Error.Code {
		case "ACCSESSEXC":
			return fmt.Errorf("cloud refused login: maximum session count reached, log out other clients")
		case "USRBADLOGIN":
			return fmt.Errorf("cloud refused login: bad credentials, check the configured username/password")
		default:
			return fmt.Errorf("cloud refused login: %s", result.Error.Code)
		}
	}
	if result.Session == "" {
		return fmt.Errorf("cloud login returned no session")
	}
	c.sessionID = result.Session
	return nil
}

func (c *httpClient) Networks(ctx context.Context) ([]Network, error) {
	var networks []Network
	if err := c.get(ctx, "/locations", nil, &networks); err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}
	return networks, nil
}

func (c *httpClient) Groups(ctx context.Context, networkID int) ([]Group, error) {
	q := url.Values{"location$id": {fmt.Sprint(networkID)}}
	var groups []Group
	if err := c.get(ctx, "/groups", q, &groups); err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

func (c *httpClient) Devices(ctx context.Context, networkID int) ([]Device, error) {
	q := url.Values{"location$id": {fmt.Sprint(networkID)}}
	var devices []Device
	if err := c.get(ctx, "/devices", q, &devices); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

func (c *httpClient) DeviceAttributes(ctx context.Context, deviceID int, attrs []string) (map[string]float64, error) {
	q := url.Values{"attributes": {strings.Join(attrs, ",")}}
	raw := make(map[string]json.Number)
	if err := c.get(ctx, fmt.Sprintf("/device/%d/attribute", deviceID), q, &raw); err != nil {
		return nil, fmt.Errorf("failed to read device %d attributes: %w", deviceID, err)
	}
	values := make(map[string]float64, len(raw))
	for name, num := range raw {
		f, err := num.Float64()
		if err != nil {
			continue
		}
		values[name] = f
	}
	return values, nil
}

func (c *httpClient) DeviceHourlyStats(ctx context.Context, deviceID int) ([]float64, error) {
	var stats struct {
		Values []float64 `json:"values"`
	}
	if err := c.get(ctx, fmt.Sprintf("/device/%d/statistics/24hours", deviceID), nil, &stats); err != nil {
		return nil, fmt.Errorf("failed to read device %d hourly stats: %w", deviceID, err)
	}
	return stats.Values, nil
}

func (c *httpClient) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	c.sessionID = ""
	return nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out interface{}) error {
	if c.sessionID != "" {
		req.Header.Set("Session-Id", c.sessionID)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cloud returned status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
