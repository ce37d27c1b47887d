package submission

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// SigningGateway submits a set's generated documents for external
// notarization. Exactly one of two outcomes: nil (accepted) or an error
// (rejected/unreachable). No retry; a rejected attempt is terminal for the
// set and the user must re-queue.
type SigningGateway interface {
	Submit(ctx context.Context, folder, activityID string) error
}

type signingClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewSigningClient(baseURL, apiKey string, logger *zap.Logger) SigningGateway {
	return &signingClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  logger.Named("signing"),
	}
}

// Submit attaches every file in the scratch folder plus the activity id as a
// multipart payload and posts it to the signing endpoint.
func (c *signingClient) Submit(ctx context.Context, folder, activityID string) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	entries, err := os.ReadDir(folder)
	if err != nil {
		return fmt.Errorf("read scratch folder: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		part, err := writer.CreateFormFile("files", entry.Name())
		if err != nil {
			return err
		}
		f, err := os.Open(filepath.Join(folder, entry.Name()))
		if err != nil {
			return err
		}
		_, err = io.Copy(part, f)
		f.Close()
		if err != nil {
			return err
		}
	}

	if err := writer.WriteField("activityId", activityID); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sign", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	c.logger.Info("submitting documents for signing", zap.String("activityId", activityID))

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		respBody, _ := io.ReadAll(res.Body)
		return &ExternalRejectionError{StatusCode: res.StatusCode, Body: string(respBody)}
	}

	return nil
}
