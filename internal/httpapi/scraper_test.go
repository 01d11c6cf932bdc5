package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/apperr"
	"github.com/iaros/marketwatch/internal/cache"
	"github.com/iaros/marketwatch/internal/identity"
	"github.com/iaros/marketwatch/internal/scrapepipeline"
)

var parsingFailedErr = apperr.New(apperr.ParsingFailed, "missing price field")

type fakeCmdable struct {
	redis.Cmdable
	store map[string]string
}

func newFakeCmdable() *fakeCmdable { return &fakeCmdable{store: map[string]string{}} }

func (f *fakeCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if v, ok := f.store[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeCmdable) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case string:
		f.store[key] = v
	case []byte:
		f.store[key] = string(v)
	}
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.store, k)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func (f *fakeCmdable) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, k := range keys {
		if _, ok := f.store[k]; ok {
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

type fakeDoer struct {
	status int
	body   string
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: f.status, Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

type fakeParser struct {
	fields scrapepipeline.Fields
	err    error
}

func (f fakeParser) Parse(html string) (scrapepipeline.Fields, error) { return f.fields, f.err }

type fakeSuspender struct{ suspended bool }

func (f fakeSuspender) IsGloballySuspended(ctx context.Context) (bool, error) {
	return f.suspended, nil
}

const testProductURL = "https://produto.mercadolivre.com.br/MLB-123"

func newTestPipeline(parser fakeParser) *scrapepipeline.Pipeline {
	client := newFakeCmdable()
	cacheManager := cache.New(client, time.Hour, 5)
	doer := &fakeDoer{status: 200, body: "<html>a product page</html>"}

	return scrapepipeline.New(
		doer, cacheManager, identity.NewUserAgentManager(nil), nil, nil, nil, nil, nil,
		nil, parser, fakeSuspender{}, nil, zap.NewNop(),
	)
}

func TestScraperParseEndpointReturnsFields(t *testing.T) {
	want := scrapepipeline.Fields{CurrentPrice: decimal.NewFromFloat(149.90)}
	pipeline := newTestPipeline(fakeParser{fields: want})

	router := NewScraperRouter(Dependencies{ServiceName: "scraper-service"}, pipeline, zap.NewNop())

	reqBody, _ := json.Marshal(map[string]string{"url": testProductURL, "product_type": "monitored"})
	req := httptest.NewRequest(http.MethodPost, "/scraper/parse", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp parseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CurrentPrice != 149.90 {
		t.Fatalf("unexpected current_price: %v", resp.CurrentPrice)
	}
}

func TestScraperParseEndpointRejectsMissingURL(t *testing.T) {
	pipeline := newTestPipeline(fakeParser{})
	router := NewScraperRouter(Dependencies{ServiceName: "scraper-service"}, pipeline, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/scraper/parse", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestScraperParseEndpointSurfacesParsingFailedAsUnprocessable(t *testing.T) {
	pipeline := newTestPipeline(fakeParser{err: parsingFailedErr})
	router := NewScraperRouter(Dependencies{ServiceName: "scraper-service"}, pipeline, zap.NewNop())

	reqBody, _ := json.Marshal(map[string]string{"url": testProductURL, "product_type": "monitored"})
	req := httptest.NewRequest(http.MethodPost, "/scraper/parse", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestScraperHealthEndpoint(t *testing.T) {
	pipeline := newTestPipeline(fakeParser{})
	router := NewScraperRouter(Dependencies{ServiceName: "scraper-service"}, pipeline, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
