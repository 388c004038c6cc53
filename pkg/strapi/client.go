// Package strapi talks to a Strapi v5 server: it discovers content type
// schemas through the content-type builder and runs compiled queries against
// the REST API.
package strapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/bitechdev/StrapiSpec/pkg/logger"
	"github.com/bitechdev/StrapiSpec/pkg/metrics"
	"github.com/bitechdev/StrapiSpec/pkg/querybuilder"
	"github.com/bitechdev/StrapiSpec/pkg/tracing"
)

const (
	contentTypesPath = "/api/content-type-builder/content-types"
	apiPrefix        = "api::"

	// maxResponseSize caps how much of a Strapi response is read
	maxResponseSize = 32 << 20
)

// Operation names used for metrics and spans
const (
	OpListContentTypes = "list_content_types"
	OpGetContentType   = "get_content_type"
	OpExecute          = "execute"
	OpTestConnection   = "test_connection"
)

// Client is a Strapi REST client bound to one base URL and API token
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	concurrency int
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.httpClient.Timeout = d
		}
	}
}

// WithConcurrency bounds parallel schema detail fetches
func WithConcurrency(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.concurrency = n
		}
	}
}

// NewClient creates a client. A trailing slash on baseURL is ignored.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// get performs an authorized GET and returns the status and body
func (c *Client) get(ctx context.Context, op, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	ctx, span := tracing.StartClientSpan(ctx, "strapi."+op, req.Header,
		attribute.String("http.method", http.MethodGet),
		attribute.String("strapi.path", path),
	)
	defer span.End()
	req = req.WithContext(ctx)

	start := time.Now()
	status, body, err := c.do(req)

	recorded := err
	if recorded == nil && !isSuccess(status) {
		recorded = fmt.Errorf("status %d", status)
	}
	metrics.GetProvider().RecordStrapiRequest(op, time.Since(start), recorded)

	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		tracing.RecordError(ctx, err)
	}

	return status, body, err
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

// ListContentTypes returns the api:: content types with their attributes.
// Details are fetched in parallel; a type whose detail request fails is kept
// as listed. Any failure of the listing itself yields an empty result.
func (c *Client) ListContentTypes(ctx context.Context) []ContentType {
	status, body, err := c.get(ctx, OpListContentTypes, contentTypesPath)
	if err != nil {
		logger.Warn("Error fetching content types: %v", err)
		return []ContentType{}
	}
	if !isSuccess(status) {
		logger.Warn("Error fetching content types: status %d", status)
		return []ContentType{}
	}

	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return []ContentType{}
	}

	var basics []ContentType
	data.ForEach(func(_, item gjson.Result) bool {
		uid := item.Get("uid").String()
		if !strings.HasPrefix(uid, apiPrefix) {
			return true
		}
		ct, err := mapContentType(item)
		if err != nil {
			ct = ContentType{UID: uid, APIID: item.Get("apiID").String(), Attributes: map[string]Attribute{}}
		}
		basics = append(basics, ct)
		return true
	})

	result := make([]ContentType, len(basics))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i := range basics {
		g.Go(func() error {
			detailed, err := c.GetContentType(gctx, basics[i].UID)
			if err != nil {
				logger.Warn("Failed to fetch schema for %s: %v", basics[i].UID, err)
				result[i] = basics[i]
				return nil
			}
			result[i] = detailed
			return nil
		})
	}
	_ = g.Wait()

	return result
}

// GetContentType fetches and maps the schema of one content type
func (c *Client) GetContentType(ctx context.Context, uid string) (ContentType, error) {
	status, body, err := c.get(ctx, OpGetContentType, contentTypesPath+"/"+uid)
	if err != nil {
		return ContentType{}, fmt.Errorf("failed to fetch content type %s: %w", uid, err)
	}
	if !isSuccess(status) {
		return ContentType{}, newAPIError(status, body)
	}

	data := gjson.GetBytes(body, "data")
	if !data.IsObject() {
		return ContentType{}, fmt.Errorf("content type %s: response has no data object", uid)
	}

	return mapContentType(data)
}

// mapContentType reads the builder's {uid, apiID, schema{...}} shape
func mapContentType(data gjson.Result) (ContentType, error) {
	schema := data.Get("schema")
	apiID := data.Get("apiID").String()

	ct := ContentType{
		UID:   data.Get("uid").String(),
		APIID: apiID,
		Kind:  orDefault(schema.Get("kind").String(), KindCollectionType),
		Info: Info{
			SingularName: schema.Get("singularName").String(),
			PluralName:   schema.Get("pluralName").String(),
			DisplayName:  orDefault(schema.Get("displayName").String(), apiID),
			Description:  schema.Get("description").String(),
		},
		Attributes: map[string]Attribute{},
	}

	if dp := schema.Get("draftAndPublish"); dp.Exists() && dp.Type != gjson.Null {
		v := dp.Bool()
		ct.Options.DraftAndPublish = &v
	}

	if attrs := schema.Get("attributes"); attrs.IsObject() {
		if err := json.Unmarshal([]byte(attrs.Raw), &ct.Attributes); err != nil {
			return ContentType{}, fmt.Errorf("content type %s: invalid attributes: %w", ct.UID, err)
		}
	}

	return ct, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Execute runs a compiled query string against /api/<collection>
func (c *Client) Execute(ctx context.Context, collection, queryString string) (*Response, error) {
	path := querybuilder.BuildURL("", collection, queryString)
	if path == "" {
		return nil, fmt.Errorf("no collection given")
	}

	status, body, err := c.get(ctx, OpExecute, path)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	if !isSuccess(status) {
		apiErr := newAPIError(status, body)
		logger.Debug("Strapi rejected query on %s: %v", collection, apiErr)
		return nil, apiErr
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &resp, nil
}

// newAPIError builds an APIError from a Strapi error body {error:{status,name,message,details}}
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		Status:  status,
		Message: DefaultErrorMessage,
	}
	if !gjson.ValidBytes(body) {
		return apiErr
	}

	e := gjson.GetBytes(body, "error")
	if msg := e.Get("message").String(); msg != "" {
		apiErr.Message = msg
	}
	apiErr.Name = e.Get("name").String()
	if details := e.Get("details"); details.Exists() {
		apiErr.Details = json.RawMessage(details.Raw)
	}

	return apiErr
}

// TestConnection reports whether GET /api answers with 2xx
func (c *Client) TestConnection(ctx context.Context) bool {
	status, _, err := c.get(ctx, OpTestConnection, "/api")
	if err != nil {
		logger.Debug("Strapi connection test failed: %v", err)
		return false
	}
	return isSuccess(status)
}
