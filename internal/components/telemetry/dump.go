package telemetry

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

const report_resty_dump = "resty.dump"

// DumpOutput receives a plain text rendition of every http exchange.
type DumpOutput interface {
	Write(id string, contents string) error
}

type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput writes every exchange into its own file in dir, dir is
// emptied first.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) error {
	return os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
}

var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
	"X-Csrf-Token":  true,
}

var redactedFormFields = []string{"password"}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []string{}
	for _, k := range keys {
		for _, v := range headers[k] {
			if redactedHeaders[http.CanonicalHeaderKey(k)] {
				v = "<redacted>"
			}
			lines = append(lines, fmt.Sprintf("%s: %s", k, v))
		}
	}
	return strings.Join(lines, "\n")
}

func formatRequestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	readBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}

	if strings.HasPrefix(req.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		values, err := url.ParseQuery(string(readBody))
		if err == nil {
			for _, field := range redactedFormFields {
				if values.Has(field) {
					values.Set(field, "<redacted>")
				}
			}
			return values.Encode()
		}
	}
	return string(readBody)
}

// 1: request method
// 2: request url
// 3: request headers in ("Key: Value" format)
// 4: request body
// 5: response status
// 6: response headers in ("Key: Value" format)
// 7: response body
const messageInfoTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%s

%s

%s`

func formatHttpMessage(res *resty.Response) string {
	var requestHeaders string
	if res.Request.RawRequest != nil {
		requestHeaders = formatHeaders(res.Request.RawRequest.Header)
	}
	return fmt.Sprintf(
		messageInfoTemplate,

		res.Request.Method, res.Request.URL,
		requestHeaders,
		formatRequestBody(res.Request.RawRequest),

		res.Status(),
		formatHeaders(res.Header()),
		res.String(),
	)
}

// DumpResty writes every response the client receives to output, secrets in
// headers and login forms are redacted. A nil output does nothing.
func DumpResty(client *resty.Client, output DumpOutput, tel API) {
	if output == nil {
		return
	}
	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := strconv.FormatUint(atomic.AddUint64(&idcounter, 1), 10)
		err := output.Write(id, formatHttpMessage(res))
		if err != nil {
			tel.ReportWarning(report_resty_dump, err, id)
		}
		return nil
	})
}
