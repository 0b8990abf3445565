// Package hydroquebec reads hourly consumption from the utility provider's
// customer portal. The authenticated session is an opaque collaborator: the
// adapter only consumes login, the hourly CSV download, the live "today so
// far" breakdown, and session close.
package hydroquebec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// TodayConsumption is the live hourly breakdown for the current day.
type TodayConsumption struct {
	Success bool
	Hours   map[int]float64 // hour of day -> kWh
}

// Session is the portal contract the adapter consumes.
type Session interface {
	Login(ctx context.Context) error
	// HourlyEnergy streams the hourly CSV covering [start, end].
	HourlyEnergy(ctx context.Context, start, end time.Time) (io.ReadCloser, error)
	TodayHourlyConsumption(ctx context.Context) (*TodayConsumption, error)
	Close(ctx context.Context) error
}

// httpSession is the thin HTTP implementation of Session.
type httpSession struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// NewSession creates a portal session client.
func NewSession(baseURL, username, password string, timeout time.Duration) Session {
	jar, _ := cookiejar.New(nil)
	return &httpSession{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout, Jar: jar},
	}
}

func (s *httpSession) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", s.username)
	form.Set("password", s.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusTooManyRequests:
		// The portal caps concurrent sessions; an old one must expire first.
		return fmt.Errorf("portal refused login: too many sessions, wait for the previous session to expire")
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("portal refused login: bad credentials, check the configured username/password")
	default:
		return fmt.Errorf("portal login returned status %d", resp.StatusCode)
	}
}

func (s *httpSession) HourlyEnergy(ctx context.Context, start, end time.Time) (io.ReadCloser, error) {
	q := url.Values{}
	q.Set("start", start.Format("2006-01-02"))
	q.Set("end", end.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/portrait/energy/hourly.csv?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("CSV download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("CSV download returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *httpSession) TodayHourlyConsumption(ctx context.Context) (*TodayConsumption, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/portrait/energy/today", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create today request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("today request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("today request returned status %d", resp.StatusCode)
	}

	var payload struct {
		Success bool `json:"success"`
		Results []struct {
			Hour float64 `json:"heure"`
			Kwh  float64 `json:"consoTotalQuot"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode today response: %w", err)
	}

	today := &TodayConsumption{Success: payload.Success, Hours: make(map[int]float64)}
	for _, r := range payload.Results {
		today.Hours[int(r.Hour)] = r.Kwh
	}
	return today, nil
}

func (s *httpSession) Close(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	resp.Body.Close()
	return nil
}
