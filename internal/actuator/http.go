package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

func NewHTTPActuator(baseURL string, timeout time.Duration) *HTTPActuator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTPActuator{
		baseURL:        strings.TrimRight(baseURL, "/"),
		timeout:        timeout,
		restartTimeout: DefaultRestartTimeout,
		client:         &http.Client{},
	}
}

func (a *HTTPActuator) SetLevel(ctx context.Context, level float64) error {
	slog.Debug(">>HTTPActuator.SetLevel", "level", level)
	defer slog.Debug("<<HTTPActuator.SetLevel")

	if !validLevel(level) {
		return ErrInvalidLevel
	}

	payload := struct {
		Pump float64 `json:"pump"`
	}{
		Pump: level,
	}

	_, err := a.request(ctx, a.timeout, http.MethodPost, "setPumpState", payload)
	return err
}

func (a *HTTPActuator) Level(ctx context.Context) (Reading, error) {
	body, err := a.request(ctx, a.timeout, http.MethodGet, "getPumpState", nil)
	if err != nil {
		return Reading{}, err
	}

	reading := ParseReading(body)
	if !reading.Known {
		slog.Warn("could not interpret pump state response", "body", string(body))
	}

	return reading, nil
}

func (a *HTTPActuator) Ping(ctx context.Context) (string, error) {
	body, err := a.request(ctx, a.timeout, http.MethodGet, "marco", nil)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(body)), nil
}

func (a *HTTPActuator) Restart(ctx context.Context) error {
	slog.Info(">>HTTPActuator.Restart")
	defer slog.Info("<<HTTPActuator.Restart")

	_, err := a.request(ctx, a.restartTimeout, http.MethodPost, "restart", nil)
	return err
}

func (a *HTTPActuator) request(ctx context.Context, timeout time.Duration, method string, endpoint string, payload interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}

	url := fmt.Sprintf("%s/api/%s", a.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Warn("actuator request failed", "endpoint", endpoint, "error", err)
		return nil, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if len(data) > MaxResponseSize {
		slog.Warn("actuator response exceeds the size limit", "endpoint", endpoint, "limit", MaxResponseSize)
		return nil, fmt.Errorf("%s: %w", endpoint, ErrResponseTooLarge)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Warn("actuator request returned an error status", "endpoint", endpoint, "status", resp.StatusCode)
		return nil, fmt.Errorf("%s returned %d: %w", endpoint, resp.StatusCode, ErrUnexpectedStatus)
	}

	return data, nil
}
