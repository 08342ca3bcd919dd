package templatestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"preset-workers/internal/common/config"
	"preset-workers/internal/common/database"
	apphttp "preset-workers/internal/common/http"
	"preset-workers/internal/common/logger"
	"preset-workers/internal/presets"
	"preset-workers/pkg/registry"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const avatarPayload = `[
	{"id":"a1","locale":"en","result_image_url":"https://cdn/a1.png","input_params":{"avatar_id":"A","script_id":"S1"}},
	{"id":"a2","locale":"en","result_image_url":"https://cdn/a2.png","input_params":{"avatar_id":"A","script_id":"S2"}},
	{"locale":"en","result_image_url":"https://cdn/missing-id.png"}
]`

func createTestStore(t *testing.T, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if r.URL.Path != "/templates" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func createTestHTTPSource(t *testing.T, srv *httptest.Server, opts ...HTTPOption) *HTTPSource {
	return NewHTTPSource(apphttp.NewWithHTTPClient(srv.Client()), srv.URL, logger.NewTestLogger(t), opts...)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func esResponse(status int, body string) *http.Response {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("X-Elastic-Product", "Elasticsearch")
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func createTestSearchSource(t *testing.T, rt roundTripFunc) *SearchSource {
	t.Helper()
	es, err := database.NewElasticsearch(config.ElasticsearchConfig{
		Addresses: []string{"http://es.local:9200"},
		Index:     "preset_templates",
	}, rt)
	require.NoError(t, err)
	return NewSearchSource(es, logger.NewTestLogger(t))
}

// ==========================
// Decoding
// ==========================

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
		wantErr bool
	}{
		{"bare array", `[{"id":"a"},{"id":"b"}]`, 2, false},
		{"envelope", `{"templates":[{"id":"a"}],"total":1}`, 1, false},
		{"empty envelope", `{}`, 0, false},
		{"blank", "  ", 0, true},
		{"garbage", `<html>`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := decodePayload([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
		})
	}
}

func TestToRecords_DropsSchemaViolations(t *testing.T) {
	items, err := decodePayload([]byte(`[
		{"id":"ok","input_params":{"avatar_id":"A"}},
		{"id":"nulls","locale":null,"result_watermarked_url":null,"prompt_zh":null,"input_params":{"avatar_id":"B"}},
		{"input_params":{"avatar_id":"C"}},
		{"id":42},
		{"id":"bad-params","input_params":"nope"}
	]`))
	require.NoError(t, err)

	records, invalid := toRecords(items, presets.ToolAvatar, logger.NewNoOpLogger())
	require.Len(t, records, 3)
	assert.Equal(t, "ok", records[0].ID)
	assert.Equal(t, "nulls", records[1].ID)
	assert.Empty(t, records[1].ResultWatermarkedURL)
	assert.Empty(t, records[2].ID)
	assert.Equal(t, 2, invalid)
}

func TestHTTPSource_NullFieldsAndMissingIDsReachTheIndex(t *testing.T) {
	srv := createTestStore(t, `[
		{"id":"p1","input_image_url":"https://cdn/p1.png","result_image_url":"https://cdn/r1.png","result_watermarked_url":null,"prompt_zh":null,"input_params":{"product_id":"P1","scene_type":"studio"}},
		{"input_image_url":"https://cdn/p2.png","result_image_url":"https://cdn/r2.png","input_params":{"product_id":"P2"}}
	]`, nil)

	raws, err := createTestHTTPSource(t, srv).Fetch(context.Background(), presets.ToolProduct, "en")
	require.NoError(t, err)
	require.Len(t, raws, 2)

	profile, ok := registry.Default().Profile("product")
	require.True(t, ok)
	records, skipped := presets.NewExtractor(profile, logger.NewNoOpLogger()).ExtractAll(raws)
	assert.Equal(t, 0, skipped)
	ix := presets.Build(records)
	assert.Equal(t, 2, ix.Len())

	res := presets.Resolve(ix, presets.Selection{ToolType: presets.ToolProduct, SubjectRef: "P1", ModifierRef: "studio", Locale: "en"}, presets.TierDemo)
	assert.Equal(t, presets.StatusExact, res.Status)
	assert.Equal(t, "https://cdn/r1.png", res.ResultURL)

	res = presets.Resolve(ix, presets.Selection{ToolType: presets.ToolProduct, SubjectRef: "P2", Locale: "en"}, presets.TierDemo)
	assert.Equal(t, presets.StatusExact, res.Status)
	assert.NotEmpty(t, res.Record.ID)
}

// ==========================
// HTTP Source
// ==========================

func TestHTTPSource_Fetch(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("X-API-Key")
		fmt.Fprint(w, avatarPayload)
	}))
	defer srv.Close()

	src := createTestHTTPSource(t, srv, WithAPIKey("secret"))
	records, err := src.Fetch(context.Background(), presets.ToolAvatar, "en")
	require.NoError(t, err)

	assert.Len(t, records, 3)
	assert.Equal(t, "locale=en&tool=avatar", gotQuery)
	assert.Equal(t, "secret", gotKey)
}

func TestHTTPSource_Fetch_Envelope(t *testing.T) {
	srv := createTestStore(t, `{"templates":[{"id":"r1","input_params":{"room_id":"R"}}]}`, nil)

	records, err := createTestHTTPSource(t, srv).Fetch(context.Background(), presets.ToolRoom, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "R", records[0].InputParams["room_id"])
}

func TestHTTPSource_Fetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := createTestHTTPSource(t, srv).Fetch(context.Background(), presets.ToolAvatar, "en")
	require.Error(t, err)

	var statusErr *apphttp.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestHTTPSource_Fetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := createTestHTTPSource(t, srv).Fetch(ctx, presets.ToolAvatar, "en")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHTTPSource_CacheReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var hits int32
	srv := createTestStore(t, avatarPayload, &hits)
	src := createTestHTTPSource(t, srv, WithCache(rdb, time.Minute))
	ctx := context.Background()

	first, err := src.Fetch(ctx, presets.ToolAvatar, "en")
	require.NoError(t, err)
	second, err := src.Fetch(ctx, presets.ToolAvatar, "en")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists("tmpl:avatar:en"))
	assert.Equal(t, time.Minute, mr.TTL("tmpl:avatar:en"))

	require.NoError(t, src.Invalidate(ctx, presets.ToolAvatar, "en"))
	_, err = src.Fetch(ctx, presets.ToolAvatar, "en")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestHTTPSource_CacheFailureFallsThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	srv := createTestStore(t, avatarPayload, nil)
	src := createTestHTTPSource(t, srv, WithCache(db, 30*time.Second))

	mock.ExpectGet("tmpl:avatar:en").SetErr(errors.New("connection refused"))
	mock.ExpectSet("tmpl:avatar:en", avatarPayload, 30*time.Second).SetVal("OK")

	records, err := src.Fetch(context.Background(), presets.ToolAvatar, "en")
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithCache_ZeroTTLDisables(t *testing.T) {
	db, _ := redismock.NewClientMock()
	src := NewHTTPSource(nil, "http://store", nil, WithCache(db, 0))
	assert.Nil(t, src.cache)
}

// ==========================
// Search Source
// ==========================

func TestSearchSource_Fetch(t *testing.T) {
	var gotPath, gotBody string
	src := createTestSearchSource(t, func(r *http.Request) (*http.Response, error) {
		gotPath = r.URL.Path
		if r.Body != nil {
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
		}
		return esResponse(200, `{"hits":{"hits":[
			{"_source":{"id":"a1","tool":"avatar","locale":"en","result_image_url":"u1","input_params":{"avatar_id":"A"}}},
			{"_source":{"id":"a2","tool":"avatar","result_image_url":"u2","input_params":{"avatar_id":"B"}}},
			{"_source":{"id":7,"tool":"avatar"}}
		]}}`), nil
	})

	records, err := src.Fetch(context.Background(), presets.ToolAvatar, "en")
	require.NoError(t, err)

	assert.Equal(t, "/preset_templates/_search", gotPath)
	assert.Contains(t, gotBody, `"term":{"tool":"avatar"}`)
	assert.Contains(t, gotBody, `"term":{"locale":"en"}`)
	require.Len(t, records, 2)
	assert.Equal(t, "a1", records[0].ID)
	assert.Equal(t, "", records[1].Locale)
}

func TestSearchSource_Fetch_ErrorStatus(t *testing.T) {
	src := createTestSearchSource(t, func(r *http.Request) (*http.Response, error) {
		return esResponse(404, `{"error":{"type":"index_not_found_exception"}}`), nil
	})

	_, err := src.Fetch(context.Background(), presets.ToolAvatar, "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index_not_found_exception")
}

func TestBuildQuery_NoLocale(t *testing.T) {
	q := buildQuery(presets.ToolBackground, "")
	filters := q["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	assert.Len(t, filters, 1)
}

// ==========================
// Factory
// ==========================

func TestNew(t *testing.T) {
	src, err := New(config.TemplateStoreConfig{Source: config.SourceHTTP, BaseURL: "http://store"}, Dependencies{})
	require.NoError(t, err)
	assert.IsType(t, &HTTPSource{}, src)

	_, err = New(config.TemplateStoreConfig{Source: config.SourceElasticsearch}, Dependencies{})
	assert.Error(t, err)

	_, err = New(config.TemplateStoreConfig{Source: "ftp"}, Dependencies{})
	assert.Error(t, err)
}
