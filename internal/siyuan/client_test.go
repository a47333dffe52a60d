package siyuan

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/account"
)

func testCloudEndpoints(base string) CloudEndpoints {
	return CloudEndpoints{
		AddURL:         base + "/apis/siyuan/inbox/addCloudShorthand",
		UploadURL:      base + "/apis/siyuan/upload",
		UserAgentKey:   "User-Agent",
		UserAgentValue: "SiYuan/3.1.0",
		BizTypeKey:     "X-Upload-Biz-Type",
		BizTypeValue:   "assets",
		MetaTypeKey:    "X-Upload-Meta-Type",
		MetaTypeValue:  "0",
	}
}

func testCacheDirs(t *testing.T) CacheDirs {
	t.Helper()
	dir := t.TempDir()
	return CacheDirs{
		Images: filepath.Join(dir, "images"),
		Audios: filepath.Join(dir, "audios"),
		Videos: filepath.Join(dir, "videos"),
	}
}

func testRegistry(t *testing.T, base string) *Registry {
	t.Helper()
	return NewRegistry(nil, testCloudEndpoints(base), testCacheDirs(t))
}

func cloudAccount(id string) account.Account {
	acc := account.New(id)
	acc.Inbox.Enable = true
	acc.Inbox.Mode = account.ModeCloud
	acc.Cloud.Token = "cloud-token"
	return acc
}

func TestRegistryReusesClientPerAccount(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t, "http://unused.test")
	first := reg.Acquire(cloudAccount("a"))
	updated := cloudAccount("a")
	updated.Cloud.Token = "rotated"
	second := reg.Acquire(updated)
	if first != second {
		t.Fatalf("expected the same client instance per account id")
	}
	if second.Account().Cloud.Token != "rotated" {
		t.Fatalf("account record not refreshed on reuse")
	}
	if reg.Acquire(cloudAccount("b")) == first {
		t.Fatalf("distinct accounts must get distinct clients")
	}
}

func TestAddCloudShorthand(t *testing.T) {
	t.Parallel()

	var gotAuth, gotTitle, gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/apis/siyuan/inbox/addCloudShorthand" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		gotTitle, gotContent = body["title"], body["content"]
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "msg": "", "data": nil})
	}))
	defer srv.Close()

	client := testRegistry(t, srv.URL).Acquire(cloudAccount("a"))
	if err := client.AddCloudShorthand(context.Background(), "see [x](<x>)", "2023-06-01"); err != nil {
		t.Fatalf("add shorthand: %v", err)
	}
	if gotAuth != "token cloud-token" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotTitle != "2023-06-01" || gotContent != "see [x](<x>)" {
		t.Fatalf("unexpected payload: %q %q", gotTitle, gotContent)
	}
}

func TestAddCloudShorthandDefaultTitleIsDate(t *testing.T) {
	t.Parallel()

	var gotTitle string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotTitle = body["title"]
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 0})
	}))
	defer srv.Close()

	client := testRegistry(t, srv.URL).Acquire(cloudAccount("a"))
	if err := client.AddCloudShorthand(context.Background(), "content", ""); err != nil {
		t.Fatalf("add shorthand: %v", err)
	}
	// YYYY-MM-DD: the backend appends to the same-day entry when the
	// title has exactly this shape.
	if len(gotTitle) != 10 || gotTitle[4] != '-' || gotTitle[7] != '-' {
		t.Fatalf("default title not a date: %q", gotTitle)
	}
}

func TestCloudUploadMultipart(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Upload-Biz-Type"); got != "assets" {
			t.Errorf("missing biz type header, got %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		files := r.MultipartForm.File["file[]"]
		if len(files) != 1 || files[0].Filename != "a.image" {
			t.Errorf("unexpected files: %+v", files)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"succMap":  map[string]string{"a.image": "https://assets.test/a.image"},
				"errFiles": []string{},
			},
		})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "a.image")
	if err := os.WriteFile(path, []byte("png bytes"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	client := testRegistry(t, srv.URL).Acquire(cloudAccount("a"))
	result, err := client.CloudUpload(context.Background(), []UploadFile{{Name: "a.image", Path: path}})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if result.SuccMap["a.image"] != "https://assets.test/a.image" {
		t.Fatalf("unexpected succ map: %v", result.SuccMap)
	}
}

func TestServiceCalls(t *testing.T) {
	t.Parallel()

	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if got := r.Header.Get("Authorization"); got != "Token service-token" {
			t.Errorf("unexpected auth header: %q", got)
		}
		switch r.URL.Path {
		case "/api/asset/upload":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if got := r.FormValue("assetsDirPath"); got != "/assets/inbox/" {
				t.Errorf("unexpected assetsDirPath: %q", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code": 0,
				"data": map[string]any{"succMap": map[string]string{}, "errFiles": []string{}},
			})
		case "/api/filetree/createDailyNote":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["notebook"] != "nb1" {
				t.Errorf("unexpected notebook: %q", body["notebook"])
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code": 0,
				"data": map[string]string{"id": "20230601-block"},
			})
		case "/api/block/appendBlock":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["parentID"] != "20230601-block" || body["dataType"] != "markdown" {
				t.Errorf("unexpected append payload: %v", body)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 0})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	acc := account.New("a")
	acc.Service.BaseURI = srv.URL + "/"
	acc.Service.Token = "service-token"
	acc.Service.Notebook = "nb1"
	client := testRegistry(t, srv.URL).Acquire(acc)

	path := filepath.Join(t.TempDir(), "b.audio")
	if err := os.WriteFile(path, []byte("opus bytes"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := client.ServiceUpload(context.Background(), []UploadFile{{Name: "b.audio", Path: path}}, acc.Service.AssetsDir); err != nil {
		t.Fatalf("service upload: %v", err)
	}
	noteID, err := client.CreateDailyNote(context.Background())
	if err != nil {
		t.Fatalf("create daily note: %v", err)
	}
	if noteID != "20230601-block" {
		t.Fatalf("unexpected note id %q", noteID)
	}
	if err := client.AppendBlock(context.Background(), noteID, "- item", "markdown"); err != nil {
		t.Fatalf("append block: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("unexpected call sequence: %v", paths)
	}
}

func TestEnvelopeErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/apis/siyuan/inbox/addCloudShorthand":
			_ = json.NewEncoder(w).Encode(map[string]any{"code": -1, "msg": "invalid token"})
		default:
			http.Error(w, "nope", http.StatusForbidden)
		}
	}))
	defer srv.Close()

	endpoints := testCloudEndpoints(srv.URL)
	endpoints.UploadURL = srv.URL + "/forbidden"
	client := NewRegistry(nil, endpoints, testCacheDirs(t)).Acquire(cloudAccount("a"))

	err := client.AddCloudShorthand(context.Background(), "x", "t")
	var apiErr *APIError
	if err == nil || !strings.Contains(err.Error(), "invalid token") {
		t.Fatalf("expected application error, got %v", err)
	}
	if !errors.As(err, &apiErr) || apiErr.Code != -1 {
		t.Fatalf("expected APIError code -1, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "c.image")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := client.CloudUpload(context.Background(), []UploadFile{{Name: "c.image", Path: path}}); err == nil {
		t.Fatalf("expected transport error for 403")
	}
}

func TestDownloadStreamsToFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("media payload"))
	}))
	defer srv.Close()

	client := testRegistry(t, srv.URL).Acquire(cloudAccount("a"))

	path, name, err := client.Download(context.Background(), srv.URL+"/file", KindImage, "pic.image")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if name != "pic.image" {
		t.Fatalf("unexpected name %q", name)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "media payload" {
		t.Fatalf("unexpected content %q", raw)
	}

	// Generated names end with the kind.
	_, generated, err := client.Download(context.Background(), srv.URL+"/file", KindVideo, "")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !strings.HasSuffix(generated, ".video") {
		t.Fatalf("generated name missing kind extension: %q", generated)
	}
}
