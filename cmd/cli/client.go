package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

var httpClient *resty.Client

func initClient() {
	httpClient = resty.New()
	httpClient.SetBaseURL(apiURL)
	httpClient.SetTimeout(15 * time.Second)
	httpClient.SetHeader("User-Agent", "threads-rt/0.1.0")
	if authToken != "" {
		httpClient.SetAuthToken(authToken)
	}
}

// apiError mirrors the server's error body
type apiError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *apiError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s (%s)", e.StatusCode, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s: %s", e.StatusCode, e.Code, e.Message)
}

// parseError turns a non-2xx response into an apiError
func parseError(resp *resty.Response) error {
	var errResp apiError
	if err := json.Unmarshal(resp.Body(), &errResp); err == nil && errResp.Code != "" {
		errResp.StatusCode = resp.StatusCode()
		return &errResp
	}
	return &apiError{
		Code:       "unknown_error",
		Message:    string(resp.Body()),
		StatusCode: resp.StatusCode(),
	}
}

// do runs req and decodes a 2xx body into result
func do(req *resty.Request, method, path string, result interface{}) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	if resp.IsError() {
		return parseError(resp)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
