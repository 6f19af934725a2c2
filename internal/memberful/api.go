package memberful

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/Tinuki562/junior.guru/internal/cache"
	"github.com/Tinuki562/junior.guru/internal/components/assert"
	"github.com/Tinuki562/junior.guru/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// https://memberful.com/help/integrate/advanced/memberful-api/

const (
	DefaultBaseURL = "https://juniorguru.memberful.com"
	UserAgent      = "JuniorGuruBot (+https://junior.guru)"

	apiCacheTag = "memberfulapi"
	csvCacheTag = "memberfulcsv"

	report_api_execute = "api.execute"
	report_api_mutate  = "api.mutate"
)

var tracer = otel.Tracer("juniorguru/memberful")

var dumpOutput telemetry.DumpOutput

// SetHttpDumpOutput makes clients created afterwards write every http
// exchange with Memberful to output.
func SetHttpDumpOutput(output telemetry.DumpOutput) {
	dumpOutput = output
}

// MemberURL returns the admin page of the given Memberful account.
func MemberURL(accountId string) string {
	return fmt.Sprintf("%s/admin/members/%s/", DefaultBaseURL, accountId)
}

func newHttpClient(baseUrl string, tel telemetry.API) (*resty.Client, error) {
	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimSuffix(baseUrl, "/"))
	httpClient.SetTimeout(time.Minute)
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.SetHeader("user-agent", UserAgent)

	// 2 requests max per second
	// max burst >= 2 just means that no requests will be dropped
	rateLimiter := rate.NewLimiter(2, 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel)
	telemetry.DumpResty(httpClient, dumpOutput, tel)
	return httpClient, nil
}

type APIOptions struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	APIKey  string
	// Cache is optional, without it every execution goes to Memberful.
	Cache      cache.Store
	ClearCache bool
	Tel        telemetry.API
}

// API is a client of the Memberful GraphQL API.
type API struct {
	http  *resty.Client
	cache *cacheLayer
	tel   telemetry.API
}

func NewAPI(opts APIOptions) (*API, error) {
	assert.NotNil(opts.Tel)
	tel := telemetry.NewScopedAPI("memberful", opts.Tel)

	if opts.APIKey == "" {
		return nil, fmt.Errorf("memberful: api key was not specified")
	}
	baseUrl := opts.BaseURL
	if baseUrl == "" {
		baseUrl = DefaultBaseURL
	}

	httpClient, err := newHttpClient(baseUrl, tel)
	if err != nil {
		return nil, err
	}
	httpClient.SetAuthToken(opts.APIKey)
	httpClient.SetHeader("content-type", "application/json")
	httpClient.SetRetryCount(3)

	return &API{
		http:  httpClient,
		cache: newCacheLayer(opts.Cache, apiCacheTag, opts.ClearCache, tel),
		tel:   tel,
	}, nil
}

// ClearCache makes the next execution evict every cached API response first.
func (a *API) ClearCache() {
	a.cache.ClearOnNextFetch()
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

func (a *API) post(ctx context.Context, report, query string, variables map[string]any) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "api:post")
	defer span.End()

	if variables == nil {
		variables = map[string]any{}
	}

	res, err := a.http.R().
		SetContext(ctx).
		SetBody(graphqlRequest{Query: query, Variables: variables}).
		Post("/api/graphql/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		a.tel.ReportBroken(report, fmt.Errorf("fetch: %w", err))
		return nil, TransportError{Op: "graphql", Err: err}
	}
	if res.IsError() {
		err = fmt.Errorf("unexpected status: %s", res.Status())
		span.SetStatus(codes.Error, err.Error())
		a.tel.ReportBroken(report, err, res.String())
		return nil, TransportError{Op: "graphql", Err: err}
	}

	var parsed graphqlResponse
	err = json.Unmarshal(res.Body(), &parsed)
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse response")
		a.tel.ReportBroken(report, fmt.Errorf("unmarshal json: %w", err))
		return nil, TransportError{Op: "graphql", Err: err}
	}
	if len(parsed.Errors) > 0 {
		messages := make([]string, len(parsed.Errors))
		for i, e := range parsed.Errors {
			messages[i] = e.Message
		}
		err = fmt.Errorf("graphql errors: %s", strings.Join(messages, "; "))
		span.SetStatus(codes.Error, err.Error())
		a.tel.ReportBroken(report, err, variables)
		return nil, TransportError{Op: "graphql", Err: err}
	}
	if len(parsed.Data) == 0 || string(parsed.Data) == "null" {
		err = fmt.Errorf("response has no data")
		span.SetStatus(codes.Error, err.Error())
		a.tel.ReportBroken(report, err)
		return nil, TransportError{Op: "graphql", Err: err}
	}

	span.SetAttributes(attribute.Int("custom.response_length", len(parsed.Data)))
	return parsed.Data, nil
}

// Execute runs a query and returns its `data`, going through the cache when
// there is one.
func (a *API) Execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	a.tel.ReportDebug("querying memberful api", variables)

	keyData := map[string]any{
		"query":           query,
		"variable_values": variables,
	}
	return a.cache.fetch(ctx, keyData, func(ctx context.Context) ([]byte, error) {
		return a.post(ctx, report_api_execute, query, variables)
	})
}

// Mutate sends a mutation, mutations are never cached.
func (a *API) Mutate(ctx context.Context, mutation string, variables map[string]any) (json.RawMessage, error) {
	a.tel.ReportDebug("sending a mutation")
	return a.post(ctx, report_api_mutate, mutation, variables)
}
