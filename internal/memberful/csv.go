package memberful

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Tinuki562/junior.guru/internal/cache"
	"github.com/Tinuki562/junior.guru/internal/components/assert"
	"github.com/Tinuki562/junior.guru/internal/components/chrono"
	"github.com/Tinuki562/junior.guru/internal/components/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultEmail        = "kure@junior.guru"
	DefaultPollInterval = 5 * time.Second
	DefaultPollAttempts = 10

	report_csv_login    = "csv.login"
	report_csv_export   = "csv.export"
	report_csv_download = "csv.download"
)

type CSVOptions struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// Email defaults to DefaultEmail.
	Email    string
	Password string

	Cache      cache.Store
	ClearCache bool

	// Sleeper waits between download attempts, defaults to chrono.StandardTime.
	Sleeper      chrono.Sleeper
	PollInterval time.Duration
	PollAttempts int

	Tel telemetry.API
}

// CSV downloads CSV exports from the Memberful admin, it logs in as a regular
// admin user since the exports are not available through the API.
type CSV struct {
	baseUrl  *url.URL
	http     *resty.Client
	email    string
	password string
	// csrfToken is empty until the first successful login
	csrfToken string

	cache        *cacheLayer
	sleeper      chrono.Sleeper
	pollInterval time.Duration
	pollAttempts int

	tel telemetry.API
}

func NewCSV(opts CSVOptions) (*CSV, error) {
	assert.NotNil(opts.Tel)
	tel := telemetry.NewScopedAPI("memberful", opts.Tel)

	rawBaseUrl := opts.BaseURL
	if rawBaseUrl == "" {
		rawBaseUrl = DefaultBaseURL
	}
	baseUrl, err := url.Parse(rawBaseUrl)
	if err != nil {
		return nil, err
	}
	httpClient, err := newHttpClient(rawBaseUrl, tel)
	if err != nil {
		return nil, err
	}

	c := &CSV{
		baseUrl:      baseUrl,
		http:         httpClient,
		email:        opts.Email,
		password:     opts.Password,
		cache:        newCacheLayer(opts.Cache, csvCacheTag, opts.ClearCache, tel),
		sleeper:      opts.Sleeper,
		pollInterval: opts.PollInterval,
		pollAttempts: opts.PollAttempts,
		tel:          tel,
	}
	if c.email == "" {
		c.email = DefaultEmail
	}
	if c.sleeper == nil {
		c.sleeper = chrono.NewStandardTime()
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.pollAttempts <= 0 {
		c.pollAttempts = DefaultPollAttempts
	}
	return c, nil
}

// ClearCache makes the next download evict every cached CSV export first.
func (c *CSV) ClearCache() {
	c.cache.ClearOnNextFetch()
}

func parseHtml(res *resty.Response) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
}

func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input[name]").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		switch strings.ToLower(input.AttrOr("type", "text")) {
		case "submit", "button", "image", "reset", "file":
			return
		case "checkbox", "radio":
			if _, checked := input.Attr("checked"); !checked {
				return
			}
			values.Add(name, input.AttrOr("value", "on"))
			return
		}
		values.Add(name, input.AttrOr("value", ""))
	})
	form.Find("textarea[name]").Each(func(_ int, textarea *goquery.Selection) {
		values.Add(textarea.AttrOr("name", ""), textarea.Text())
	})
	return values
}

func (c *CSV) login(ctx context.Context) error {
	if c.csrfToken != "" {
		return nil
	}

	loginError := func(err error) error {
		c.tel.ReportBroken(report_csv_login, err)
		return TransportError{Op: "login", Err: err}
	}

	c.tel.ReportDebug("logging into memberful")

	res, err := c.http.R().
		SetContext(ctx).
		Get("/admin/auth/sign_in")
	if err != nil {
		return loginError(fmt.Errorf("sign in page request: %w", err))
	}
	if res.IsError() {
		return loginError(fmt.Errorf("sign in page: unexpected status: %s", res.Status()))
	}
	doc, err := parseHtml(res)
	if err != nil {
		return loginError(fmt.Errorf("parse sign in page: %w", err))
	}

	form := doc.Find("form").First()
	if form.Length() == 0 {
		return loginError(fmt.Errorf("could not find sign in form"))
	}
	pageUrl := res.RawResponse.Request.URL
	actionUrl, err := pageUrl.Parse(form.AttrOr("action", ""))
	if err != nil {
		return loginError(fmt.Errorf("parse form action: %w", err))
	}

	values := formValues(form)
	values.Set("email", c.email)
	values.Set("password", c.password)

	res, err = c.http.R().
		SetContext(ctx).
		SetFormDataFromValues(values).
		Post(actionUrl.String())
	if err != nil {
		return loginError(fmt.Errorf("sign in request: %w", err))
	}
	if res.IsError() {
		return loginError(fmt.Errorf("sign in: unexpected status: %s", res.Status()))
	}
	doc, err = parseHtml(res)
	if err != nil {
		return loginError(fmt.Errorf("parse signed in page: %w", err))
	}

	csrfToken := doc.Find(`meta[name="csrf-token"]`).First().AttrOr("content", "")
	if csrfToken == "" {
		return loginError(fmt.Errorf("could not find csrf token, are the credentials right?"))
	}
	c.csrfToken = csrfToken

	c.tel.ReportDebug("logged into memberful")
	return nil
}

// requestExport asks Memberful to start generating an export and returns the
// url the export can be downloaded from once it is ready.
func (c *CSV) requestExport(ctx context.Context, exportUrl string) (string, error) {
	exportError := func(err error) error {
		c.tel.ReportBroken(report_csv_export, err, exportUrl)
		return TransportError{Op: "csv export", Err: err}
	}

	c.http.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))
	defer c.http.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-CSRF-Token", c.csrfToken).
		Post(exportUrl)
	if err != nil {
		return "", exportError(fmt.Errorf("request: %w", err))
	}
	if res.IsError() {
		return "", exportError(fmt.Errorf("unexpected status: %s", res.Status()))
	}

	location := res.Header().Get("Location")
	if location == "" {
		return "", exportError(fmt.Errorf("response has no Location header (status %s)", res.Status()))
	}
	statusUrl, err := c.baseUrl.Parse(location)
	if err != nil {
		return "", exportError(fmt.Errorf("parse Location header: %w", err))
	}
	return statusUrl.String() + "/download", nil
}

// poll tries downloading the export until it is ready, waiting between attempts.
func (c *CSV) poll(ctx context.Context, downloadUrl string) ([]byte, error) {
	span := trace.SpanFromContext(ctx)
	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		if attempt > 1 {
			c.tel.ReportDebug("waiting for the export", attempt, c.pollInterval.String(), downloadUrl)
			err := c.sleeper.Sleep(ctx, c.pollInterval)
			if err != nil {
				return nil, err
			}
		}

		res, err := c.http.R().
			SetContext(ctx).
			Get(downloadUrl)
		if err != nil {
			c.tel.ReportBroken(report_csv_download, err, downloadUrl)
			return nil, TransportError{Op: "csv download", Err: err}
		}
		span.AddEvent("poll", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.Int("status", res.StatusCode()),
		))
		if !res.IsSuccess() {
			c.tel.ReportDebug("export not ready", attempt, res.Status())
			continue
		}

		body := res.Body()
		if !utf8.Valid(body) {
			err = DownloadError{URL: downloadUrl, Attempts: attempt, Err: errors.New("export is not valid UTF-8")}
			c.tel.ReportBroken(report_csv_download, err)
			return nil, err
		}
		c.tel.ReportDebug("export downloaded", attempt, downloadUrl)
		return body, nil
	}

	err := DownloadError{URL: downloadUrl, Attempts: c.pollAttempts}
	c.tel.ReportBroken(report_csv_download, err)
	return nil, err
}

func (c *CSV) download(ctx context.Context, exportUrl string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "csv:download")
	defer span.End()
	span.SetAttributes(attribute.String("custom.export_url", exportUrl))

	err := c.login(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to login")
		return nil, err
	}
	downloadUrl, err := c.requestExport(ctx, exportUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to request export")
		return nil, err
	}
	body, err := c.poll(ctx, downloadUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to download export")
		return nil, err
	}
	return body, nil
}

// ExportURL is the admin url which generates the export described by params.
func (c *CSV) ExportURL(params url.Values) string {
	return c.baseUrl.ResolveReference(&url.URL{
		Path:     "/admin/csv_exports",
		RawQuery: params.Encode(),
	}).String()
}

// Download returns the rows of the CSV export described by params, like
// `type=MemberCsvExport`. Cached exports are returned without logging in.
func (c *CSV) Download(ctx context.Context, params url.Values) (*Rows, error) {
	exportUrl := c.ExportURL(params)
	c.tel.ReportDebug("looking up csv export", exportUrl)

	data, err := c.cache.fetch(ctx, map[string]any{"url": exportUrl}, func(ctx context.Context) ([]byte, error) {
		return c.download(ctx, exportUrl)
	})
	if err != nil {
		return nil, err
	}
	return ParseCSV(string(data)), nil
}
