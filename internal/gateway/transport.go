package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const defaultBaseURL = "https://open.feishu.cn"

// HTTPTransport is the production Transport: it turns a gateway
// Request into an actual HTTP call against the remote document
// service, JSON-encoding Body unless it carries a "file" io.Reader (in
// which case it builds a multipart/form-data upload), and decodes the
// service's {code, msg, data} envelope back into a Response.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPTransport builds an HTTPTransport with sane request timeouts.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		BaseURL: defaultBaseURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Do implements Transport.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (Response, error) {
	base := t.BaseURL
	if base == "" {
		base = defaultBaseURL
	}

	httpReq, err := t.buildRequest(ctx, base, req)
	if err != nil {
		return Response{}, errors.Wrap(err, "build http request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)

	httpResp, err := t.Client.Do(httpReq)
	if err != nil {
		return Response{}, errors.Wrap(err, "perform http request")
	}
	defer httpResp.Body.Close()

	resp := Response{HTTPStatus: httpResp.StatusCode}
	if wait, ok := retryAfter(httpResp.Header.Get("Retry-After")); ok {
		resp.RetryAfter = wait
	}

	// File downloads return a raw body, not the {code, msg, data} JSON
	// envelope every other endpoint uses.
	if isDownload(req.Path) {
		body, readErr := io.ReadAll(httpResp.Body)
		if readErr != nil {
			return resp, errors.Wrap(readErr, "read download body")
		}
		resp.Data = bytes.NewReader(body)
		return resp, nil
	}

	var envelope struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&envelope); err != nil {
		return resp, errors.Wrap(err, "decode response envelope")
	}
	resp.Code = envelope.Code
	resp.Msg = envelope.Msg
	if len(envelope.Data) > 0 {
		var data map[string]any
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return resp, errors.Wrap(err, "decode response data")
		}
		resp.Data = data
	}
	return resp, nil
}

func (t *HTTPTransport) buildRequest(ctx context.Context, base string, req Request) (*http.Request, error) {
	url := base + req.Path

	if fileBody, ok := multipartFile(req.Body); ok {
		return t.buildMultipartRequest(ctx, url, req, fileBody)
	}

	var body io.Reader
	contentType := ""
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request body")
		}
		body = bytes.NewReader(raw)
		contentType = "application/json; charset=utf-8"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	return httpReq, nil
}

func (t *HTTPTransport) buildMultipartRequest(ctx context.Context, url string, req Request, file io.Reader) (*http.Request, error) {
	fields, _ := req.Body.(map[string]any)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if k == "file" {
			continue
		}
		if err := w.WriteField(k, fmt.Sprintf("%v", v)); err != nil {
			return nil, err
		}
	}
	fileName, _ := fields["file_name"].(string)
	if fileName == "" {
		fileName = "upload.bin"
	}
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	return httpReq, nil
}

func multipartFile(body any) (io.Reader, bool) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, false
	}
	r, ok := m["file"].(io.Reader)
	return r, ok
}

func isDownload(path string) bool {
	return len(path) > len("/download") && path[len(path)-len("/download"):] == "/download"
}

func retryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(header)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
