package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

type stubResponse struct {
	status int
	body   string
	err    error
}

type stubClient struct {
	mu        sync.Mutex
	responses map[string]stubResponse
	calls     []string
	headers   []http.Header
}

func (s *stubClient) Get(_ context.Context, url string, header http.Header) (int, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, url)
	s.headers = append(s.headers, header.Clone())
	resp, ok := s.responses[url]
	if !ok {
		return http.StatusNotFound, nil, nil
	}
	if resp.err != nil {
		return 0, nil, resp.err
	}
	return resp.status, []byte(resp.body), nil
}

var feb16 = time.Date(2026, time.February, 16, 0, 0, 0, 0, time.UTC)

func TestCandidatesFollowNamingConventions(t *testing.T) {
	d, err := NewDailyIndex(DailyIndexOptions{BaseURL: "https://example.test/uploads/"}, &stubClient{}, noopLogger())
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}

	got := d.Candidates(feb16)
	want := []string{
		"https://example.test/uploads/2026/02/Daily-Price-Index-February-16-2026.pdf",
		"https://example.test/uploads/2026/02/February-16-2026-DPI-AFC.pdf",
	}
	if len(got) != len(want) {
		t.Fatalf("期望 %d 个候选, 实际 %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("候选 %d: 期望 %s, 实际 %s", i, want[i], got[i])
		}
	}
}

func TestAcquireFallsThroughToSecondTemplate(t *testing.T) {
	client := &stubClient{responses: map[string]stubResponse{
		"https://example.test/2026/02/Daily-Price-Index-February-16-2026.pdf": {status: http.StatusNotFound},
		"https://example.test/2026/02/February-16-2026-DPI-AFC.pdf":           {status: http.StatusOK, body: "%PDF"},
	}}
	d, err := NewDailyIndex(DailyIndexOptions{BaseURL: "https://example.test"}, client, noopLogger())
	if err != nil {
		t.Fatal(err)
	}

	doc, err := d.Acquire(context.Background(), feb16)
	if err != nil {
		t.Fatalf("第二个模板应成功: %v", err)
	}
	if doc.URL != "https://example.test/2026/02/February-16-2026-DPI-AFC.pdf" || string(doc.Body) != "%PDF" {
		t.Fatalf("文档不正确: %+v", doc)
	}
	if !doc.Date.Equal(feb16) {
		t.Fatalf("日期不正确: %s", doc.Date)
	}
	if len(client.calls) != 2 {
		t.Fatalf("期望 2 次请求, 实际 %v", client.calls)
	}
	if ua := client.headers[0].Get("User-Agent"); ua == "" {
		t.Fatal("应设置 User-Agent")
	}
}

func TestAcquireStopsAtFirstSuccess(t *testing.T) {
	client := &stubClient{responses: map[string]stubResponse{
		"https://example.test/2026/02/Daily-Price-Index-February-16-2026.pdf": {status: http.StatusOK, body: "first"},
		"https://example.test/2026/02/February-16-2026-DPI-AFC.pdf":           {status: http.StatusOK, body: "second"},
	}}
	d, _ := NewDailyIndex(DailyIndexOptions{BaseURL: "https://example.test"}, client, noopLogger())

	doc, err := d.Acquire(context.Background(), feb16)
	if err != nil {
		t.Fatal(err)
	}
	if string(doc.Body) != "first" {
		t.Fatalf("应返回第一个成功的文档, 实际 %q", doc.Body)
	}
	if len(client.calls) != 1 {
		t.Fatalf("成功后不应继续请求, 实际 %v", client.calls)
	}
}

func TestAcquireNotFoundSwallowsFailures(t *testing.T) {
	client := &stubClient{responses: map[string]stubResponse{
		"https://example.test/2026/02/Daily-Price-Index-February-16-2026.pdf": {err: errors.New("connection reset")},
		"https://example.test/2026/02/February-16-2026-DPI-AFC.pdf":           {status: http.StatusInternalServerError},
	}}
	d, _ := NewDailyIndex(DailyIndexOptions{BaseURL: "https://example.test"}, client, noopLogger())

	_, err := d.Acquire(context.Background(), feb16)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("期望 ErrNotFound, 实际 %v", err)
	}
	if len(client.calls) != 2 {
		t.Fatalf("应尝试所有候选, 实际 %v", client.calls)
	}
}

func TestAcquireTreatsEmptyBodyAsMiss(t *testing.T) {
	client := &stubClient{responses: map[string]stubResponse{
		"https://example.test/2026/02/Daily-Price-Index-February-16-2026.pdf": {status: http.StatusOK},
	}}
	d, _ := NewDailyIndex(DailyIndexOptions{BaseURL: "https://example.test"}, client, noopLogger())

	if _, err := d.Acquire(context.Background(), feb16); !errors.Is(err, ErrNotFound) {
		t.Fatalf("空响应应视为未找到, 实际 %v", err)
	}
}

func TestAcquireUsesListingFallback(t *testing.T) {
	listing := `<html><body>
		<a href="/uploads/2026/02/DPI-Feb-13-2026.pdf">February 13, 2026</a>
		<a href="/uploads/2026/02/Price-Index-NCR-final.pdf">Daily Price Index February 16, 2026</a>
		<a href="/news/february-16-2026.html">news</a>
	</body></html>`
	client := &stubClient{responses: map[string]stubResponse{
		"https://example.test/price-monitoring/":                   {status: http.StatusOK, body: listing},
		"https://example.test/uploads/2026/02/Price-Index-NCR-final.pdf": {status: http.StatusOK, body: "%PDF"},
	}}
	d, _ := NewDailyIndex(DailyIndexOptions{
		BaseURL:    "https://example.test/uploads",
		ListingURL: "https://example.test/price-monitoring/",
	}, client, noopLogger())

	doc, err := d.Acquire(context.Background(), feb16)
	if err != nil {
		t.Fatalf("应通过列表页找到报告: %v", err)
	}
	if doc.URL != "https://example.test/uploads/2026/02/Price-Index-NCR-final.pdf" {
		t.Fatalf("URL 不正确: %s", doc.URL)
	}
	templates := len(d.Candidates(feb16))
	if len(client.calls) != templates+2 || client.calls[templates] != "https://example.test/price-monitoring/" {
		t.Fatalf("列表页应在所有模板失败后才请求: %v", client.calls)
	}
}

func TestAcquireSkipsListingWhenTemplateHits(t *testing.T) {
	first := "https://example.test/uploads/2026/02/Daily-Price-Index-February-16-2026.pdf"
	client := &stubClient{responses: map[string]stubResponse{
		first: {status: http.StatusOK, body: "%PDF"},
		"https://example.test/price-monitoring/": {status: http.StatusOK, body: "<html></html>"},
	}}
	d, _ := NewDailyIndex(DailyIndexOptions{
		BaseURL:    "https://example.test/uploads",
		ListingURL: "https://example.test/price-monitoring/",
	}, client, noopLogger())

	if _, err := d.Acquire(context.Background(), feb16); err != nil {
		t.Fatalf("首个模板应命中: %v", err)
	}
	if len(client.calls) != 1 || client.calls[0] != first {
		t.Fatalf("模板命中时不应请求列表页: %v", client.calls)
	}
}

func TestReportLinksMatchesHrefToken(t *testing.T) {
	page := []byte(`<a href="https://cdn.test/x/February-16-2026-DPI-AFC.PDF">x</a><a href="Daily-Price-Index-February-17-2026.pdf">y</a>`)
	links, err := ReportLinks(page, "https://example.test/list", feb16)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 || !strings.HasSuffix(links[0], "February-16-2026-DPI-AFC.PDF") {
		t.Fatalf("链接匹配不正确: %v", links)
	}
}

func TestNewDailyIndexRejectsBadTemplate(t *testing.T) {
	if _, err := NewDailyIndex(DailyIndexOptions{Templates: []string{"{{.Base"}}, &stubClient{}, noopLogger()); err == nil {
		t.Fatal("模板语法错误应报错")
	}
	if _, err := NewDailyIndex(DailyIndexOptions{}, nil, noopLogger()); err == nil {
		t.Fatal("缺少 client 应报错")
	}
}

func TestHTTPClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path == "/missing.pdf" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	client := HTTPClient{Timeout: time.Second}
	header := http.Header{}
	header.Set("User-Agent", "test-agent")

	status, body, err := client.Get(context.Background(), srv.URL+"/report.pdf", header)
	if err != nil || status != http.StatusOK || string(body) != "%PDF-1.4" {
		t.Fatalf("期望成功响应, 实际 status=%d body=%q err=%v", status, body, err)
	}

	status, body, err = client.Get(context.Background(), srv.URL+"/missing.pdf", header)
	if err != nil || status != http.StatusNotFound || body != nil {
		t.Fatalf("404 应返回状态码而非错误, 实际 status=%d err=%v", status, err)
	}
}

func TestHTTPClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := HTTPClient{Timeout: 20 * time.Millisecond}
	if _, _, err := client.Get(context.Background(), srv.URL, nil); err == nil {
		t.Fatal("超时应返回错误")
	}
}

func TestHTTPClientBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	client := HTTPClient{Timeout: time.Second, MaxBodyBytes: 16}
	if _, _, err := client.Get(context.Background(), srv.URL, nil); err == nil {
		t.Fatal("超出大小限制应报错")
	}
}
