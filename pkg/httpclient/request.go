package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type EchoError struct {
	Message string `json:"message"`
}

// DoRequest performs a JSON request and decodes the response body into v when
// v is non-nil. The response status code is returned alongside any error so
// callers can distinguish client-side rejections from transport failures.
func DoRequest(ctx context.Context, method, url string, headers map[string]string, payload []byte, v interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	for k, val := range headers {
		req.Header.Add(k, val)
	}

	client := http.Client{
		Timeout: 30 * time.Second,
	}
	res, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, fmt.Errorf("read body: %w", err)
	}

	if res.StatusCode >= http.StatusBadRequest {
		var echoerr EchoError
		if jserr := json.Unmarshal(body, &echoerr); jserr == nil && echoerr.Message != "" {
			return res.StatusCode, fmt.Errorf("%s", echoerr.Message)
		}
		return res.StatusCode, fmt.Errorf("http status: %d: %s", res.StatusCode, body)
	}
	if v == nil {
		return res.StatusCode, nil
	}

	if raw, ok := v.(*[]byte); ok {
		*raw = body
		return res.StatusCode, nil
	}
	return res.StatusCode, json.Unmarshal(body, v)
}
