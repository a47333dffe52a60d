package siyuan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/account"
)

// Client talks to the remote inbox backends on behalf of one account.
// Instances are reused per account id (see Registry); the stored
// account is refreshed on reuse instead of rebuilding the client.
type Client struct {
	mu      sync.RWMutex
	account account.Account

	http   *http.Client
	cloud  CloudEndpoints
	cache  CacheDirs
	logger *slog.Logger
}

func newClient(log *slog.Logger, httpClient *http.Client, cloud CloudEndpoints, cache CacheDirs, acc account.Account) *Client {
	return &Client{
		account: acc,
		http:    httpClient,
		cloud:   cloud,
		cache:   cache,
		logger:  log.With(slog.String("service", "client"), slog.String("account", acc.ID)),
	}
}

// SetAccount replaces the account record the client acts for.
func (c *Client) SetAccount(acc account.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account = acc
}

// Account returns the current account record.
func (c *Client) Account() account.Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

func (c *Client) cloudHeaders(upload bool) http.Header {
	acc := c.Account()
	h := http.Header{}
	h.Set("Authorization", "token "+acc.Cloud.Token)
	h.Set(c.cloud.UserAgentKey, c.cloud.UserAgentValue)
	if upload {
		h.Set(c.cloud.BizTypeKey, c.cloud.BizTypeValue)
		h.Set(c.cloud.MetaTypeKey, c.cloud.MetaTypeValue)
	}
	return h
}

func (c *Client) serviceHeaders() http.Header {
	acc := c.Account()
	h := http.Header{}
	h.Set("Authorization", "Token "+acc.Service.Token)
	return h
}

// serviceURL joins a kernel API path onto the account's base URI.
func (c *Client) serviceURL(apiPath string) (string, error) {
	acc := c.Account()
	base, err := url.Parse(acc.Service.BaseURI)
	if err != nil || base.Scheme == "" {
		return "", fmt.Errorf("invalid service base URI %q", acc.Service.BaseURI)
	}
	ref, err := url.Parse(apiPath)
	if err != nil {
		return "", fmt.Errorf("invalid api path %q", apiPath)
	}
	return base.ResolveReference(ref).String(), nil
}

// Download streams a GET to a local file. When name is empty a fresh
// unique name with the kind as extension is generated. The body is
// copied incrementally, never buffered whole.
func (c *Client) Download(ctx context.Context, rawURL string, kind FileKind, name string) (string, string, error) {
	if name == "" {
		name = fmt.Sprintf("%s.%s", uuid.New(), kind)
	}
	dir := c.cache.For(kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create cache dir: %w", err)
	}
	path := filepath.Join(dir, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("build download request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", "", fmt.Errorf("download %s: unexpected status %s", rawURL, res.Status)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, res.Body); err != nil {
		return "", "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, name, nil
}

// CloudUpload sends files to the cloud inbox as multipart `file[]`
// fields and reports per-file success and failure.
func (c *Client) CloudUpload(ctx context.Context, files []UploadFile) (*UploadResult, error) {
	return c.upload(ctx, c.cloud.UploadURL, c.cloudHeaders(true), files, nil)
}

// AddCloudShorthand appends one Markdown entry to the cloud inbox.
// An empty title defaults to the current date in YYYY-MM-DD form; the
// backend appends to an existing same-day entry for that exact format.
func (c *Client) AddCloudShorthand(ctx context.Context, content, title string) error {
	if title == "" {
		title = time.Now().Format("2006-01-02")
	}
	_, err := c.postJSON(ctx, c.cloud.AddURL, c.cloudHeaders(false), map[string]string{
		"title":   title,
		"content": content,
	})
	return err
}

// ServiceUpload sends files to the kernel's asset store under the
// given assets directory.
func (c *Client) ServiceUpload(ctx context.Context, files []UploadFile, assetsDir string) (*UploadResult, error) {
	target, err := c.serviceURL("api/asset/upload")
	if err != nil {
		return nil, err
	}
	return c.upload(ctx, target, c.serviceHeaders(), files, map[string]string{
		"assetsDirPath": assetsDir,
	})
}

// CreateDailyNote creates (or finds) today's note in the account's
// inbox notebook and returns its block id.
func (c *Client) CreateDailyNote(ctx context.Context) (string, error) {
	target, err := c.serviceURL("api/filetree/createDailyNote")
	if err != nil {
		return "", err
	}
	res, err := c.postJSON(ctx, target, c.serviceHeaders(), map[string]string{
		"notebook": c.Account().Service.Notebook,
	})
	if err != nil {
		return "", err
	}
	var note dailyNote
	if err := json.Unmarshal(res.Data, &note); err != nil {
		return "", fmt.Errorf("parse daily note response: %w", err)
	}
	return note.ID, nil
}

// AppendBlock appends data to the end of the parent block. dataType is
// "markdown" or "dom".
func (c *Client) AppendBlock(ctx context.Context, parentID, data, dataType string) error {
	target, err := c.serviceURL("api/block/appendBlock")
	if err != nil {
		return err
	}
	_, err = c.postJSON(ctx, target, c.serviceHeaders(), map[string]string{
		"parentID": parentID,
		"data":     data,
		"dataType": dataType,
	})
	return err
}

func (c *Client) postJSON(ctx context.Context, target string, headers http.Header, body any) (*Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range headers {
		req.Header[key] = values
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// upload streams files as a multipart body through a pipe so large
// media never sits in memory whole.
func (c *Client) upload(ctx context.Context, target string, headers http.Header, files []UploadFile, fields map[string]string) (*UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeMultipart(mw, files, fields)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, pr)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	for key, values := range headers {
		req.Header[key] = values
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var result UploadResult
	if err := json.Unmarshal(res.Data, &result); err != nil {
		return nil, fmt.Errorf("parse upload response: %w", err)
	}
	return &result, nil
}

func writeMultipart(mw *multipart.Writer, files []UploadFile, fields map[string]string) error {
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return err
		}
	}
	for _, file := range files {
		part, err := mw.CreateFormFile("file[]", file.Name)
		if err != nil {
			return err
		}
		f, err := os.Open(file.Path)
		if err != nil {
			return err
		}
		_, err = io.Copy(part, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// do executes the request and unwraps the response envelope: non-2xx
// transport status and non-zero envelope codes are both errors.
func (c *Client) do(req *http.Request) (*Response, error) {
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("%s %s: unexpected status %s: %s", req.Method, req.URL, res.Status, strings.TrimSpace(string(body)))
	}

	var envelope Response
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%s %s: parse response: %w", req.Method, req.URL, err)
	}
	if envelope.Code != 0 {
		return nil, &APIError{Code: envelope.Code, Msg: envelope.Msg}
	}
	return &envelope, nil
}
