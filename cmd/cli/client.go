package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// errInconsistent is returned after printing a report with mismatches so the
// process exits non-zero.
var errInconsistent = errors.New("ledger is inconsistent")

// apiError is a non-2xx response from the ledger API.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Code)
}

// client talks to the ledger HTTP API.
type client struct {
	baseURL     string
	http        *http.Client
	performedBy string
}

func newClient(baseURL string, timeout time.Duration, performedBy string) *client {
	return &client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: timeout},
		performedBy: performedBy,
	}
}

// do sends the request and returns the raw body of a 2xx response. Any other
// status is an *apiError; the body is still returned so callers can print it.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body any) (int, []byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.performedBy != "" {
		req.Header.Set("X-Performed-By", c.performedBy)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, data, nil
	}

	apiErr := &apiError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	var errBody struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
		apiErr.Code = errBody.Error
		apiErr.Message = errBody.Message
	}
	return resp.StatusCode, data, apiErr
}

// printJSON re-indents a JSON body for the terminal.
func printJSON(w io.Writer, data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = w.Write(data)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
