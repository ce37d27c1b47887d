package submission

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ecmps/submission-engine/pkg/httpclient"
)

// ReportParams is the descriptor handed to the report renderer for one
// copy-of-record document.
type ReportParams struct {
	ReportCode    string
	FacilityID    int64
	MonitorPlanID string
	TestID        string
	QceID         string
	TeeID         string
	Year          int
	Quarter       int
}

// RendererClient fetches a rendered copy-of-record document from the external
// report renderer. Synchronous request/response, no side effects.
type RendererClient interface {
	Render(ctx context.Context, params ReportParams) ([]byte, error)
}

type rendererClient struct {
	baseURL string
	apiKey  string
}

func NewRendererClient(baseURL, apiKey string) RendererClient {
	return &rendererClient{baseURL: baseURL, apiKey: apiKey}
}

func (c *rendererClient) Render(ctx context.Context, params ReportParams) ([]byte, error) {
	q := url.Values{}
	q.Set("reportCode", params.ReportCode)
	q.Set("facilityId", strconv.FormatInt(params.FacilityID, 10))
	if params.MonitorPlanID != "" {
		q.Set("monitorPlanId", params.MonitorPlanID)
	}
	if params.TestID != "" {
		q.Set("testId", params.TestID)
	}
	if params.QceID != "" {
		q.Set("qceId", params.QceID)
	}
	if params.TeeID != "" {
		q.Set("teeId", params.TeeID)
	}
	if params.Year != 0 {
		q.Set("year", strconv.Itoa(params.Year))
		q.Set("quarter", strconv.Itoa(params.Quarter))
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["x-api-key"] = c.apiKey
	}

	var body []byte
	url := fmt.Sprintf("%s/api/v1/reports?%s", c.baseURL, q.Encode())
	if _, err := httpclient.DoRequest(ctx, http.MethodGet, url, headers, nil, &body); err != nil {
		return nil, fmt.Errorf("render report %s: %w", params.ReportCode, err)
	}
	return body, nil
}
