package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/backend/internal/config"
	"portfolio/backend/internal/domain"
	"portfolio/backend/internal/health"
	"portfolio/backend/internal/monitoring"
	"portfolio/backend/internal/service"
	"portfolio/backend/internal/storage"
	"portfolio/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// submitFunc 以函数实现 Submitter
type submitFunc func(ctx context.Context, input domain.SubmissionInput, from domain.Provenance) (*service.Outcome, error)

func (f submitFunc) Submit(ctx context.Context, input domain.SubmissionInput, from domain.Provenance) (*service.Outcome, error) {
	return f(ctx, input, from)
}

func testConfig(env string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 5000, Environment: env, MaxBodyBytes: 1024},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"https://portfolio.example.com"}},
	}
}

type testServer struct {
	router  *gin.Engine
	metrics *monitoring.Metrics
}

func newTestServer(t *testing.T, env string, contacts Submitter, store storage.Store) *testServer {
	t.Helper()
	metrics := monitoring.NewMetrics()
	router := NewRouter(RouterDependencies{
		Config:   testConfig(env),
		Contacts: contacts,
		Status:   monitoring.NewHealthChecker(store, func() bool { return false }, nil, Version, env),
		Probes:   health.NewHealthChecker(store, nil),
		Metrics:  metrics,
	})
	return &testServer{router: router, metrics: metrics}
}

func (s *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const validPayload = `{"name":"Ada Lovelace","email":"Ada@Example.com","message":"I would like to talk about engines."}`

func TestContactHandler_Submit(t *testing.T) {
	t.Run("保存成功返回 201", func(t *testing.T) {
		var got domain.SubmissionInput
		var prov domain.Provenance
		srv := newTestServer(t, "development", submitFunc(func(_ context.Context, in domain.SubmissionInput, from domain.Provenance) (*service.Outcome, error) {
			got, prov = in, from
			return &service.Outcome{
				ID:          "abc123",
				SubmittedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				Persisted:   true,
				EmailSent:   true,
				Message:     service.MessageReceived,
			}, nil
		}), memory.NewStore())

		rec := srv.do(http.MethodPost, "/api/contact", validPayload, map[string]string{"User-Agent": "portfolio-test"})

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{
			"success": true,
			"message": "Thank you for reaching out! I have received your message and will get back to you soon.",
			"data": {"id": "abc123", "submittedAt": "2024-01-01T00:00:00Z", "emailSent": true}
		}`, rec.Body.String())
		assert.Equal(t, "Ada@Example.com", got.Email)
		assert.Equal(t, "portfolio-test", prov.UserAgent)
		assert.Equal(t, "192.0.2.1", prov.IPAddress)
	})

	t.Run("数据库不可用返回 200", func(t *testing.T) {
		srv := newTestServer(t, "development", submitFunc(func(context.Context, domain.SubmissionInput, domain.Provenance) (*service.Outcome, error) {
			return &service.Outcome{ID: "temp-1704067200000", SubmittedAt: time.Now(), Message: service.MessageDegradedUnsent}, nil
		}), memory.NewStore())

		rec := srv.do(http.MethodPost, "/api/contact", validPayload, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Contains(t, body["message"], "temporarily unavailable")
		data := body["data"].(map[string]interface{})
		assert.Equal(t, "temp-1704067200000", data["id"])
		assert.Equal(t, false, data["emailSent"])
	})

	t.Run("服务器错误在开发环境附带详情", func(t *testing.T) {
		srv := newTestServer(t, "development", submitFunc(func(context.Context, domain.SubmissionInput, domain.Provenance) (*service.Outcome, error) {
			return nil, errors.New("save submission: disk full")
		}), memory.NewStore())

		rec := srv.do(http.MethodPost, "/api/contact", validPayload, nil)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, MsgSubmitFailed, body["error"])
		assert.Equal(t, MsgUnexpected, body["message"])
		assert.Equal(t, "save submission: disk full", body["detail"])
		assert.NotEmpty(t, body["timestamp"])
	})

	t.Run("服务器错误在生产环境隐藏详情", func(t *testing.T) {
		srv := newTestServer(t, "production", submitFunc(func(context.Context, domain.SubmissionInput, domain.Provenance) (*service.Outcome, error) {
			return nil, errors.New("save submission: disk full")
		}), memory.NewStore())

		rec := srv.do(http.MethodPost, "/api/contact", validPayload, nil)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, decode(t, rec), "detail")
	})

	t.Run("非法 JSON", func(t *testing.T) {
		srv := newTestServer(t, "development", submitFunc(func(context.Context, domain.SubmissionInput, domain.Provenance) (*service.Outcome, error) {
			t.Fatal("submit must not be called")
			return nil, nil
		}), memory.NewStore())

		rec := srv.do(http.MethodPost, "/api/contact", `{"name":`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, MsgInvalidRequest, decode(t, rec)["error"])
	})

	t.Run("请求体超限", func(t *testing.T) {
		srv := newTestServer(t, "development", submitFunc(func(context.Context, domain.SubmissionInput, domain.Provenance) (*service.Outcome, error) {
			return nil, nil
		}), memory.NewStore())

		rec := srv.do(http.MethodPost, "/api/contact", `{"message":"`+strings.Repeat("x", 2048)+`"}`, nil)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestContactHandler_WithService(t *testing.T) {
	store := memory.NewStore()
	contacts := service.NewContactService(store, nil, nil, nil, nil)
	srv := newTestServer(t, "development", contacts, store)

	t.Run("缺少必填字段", func(t *testing.T) {
		rec := srv.do(http.MethodPost, "/api/contact", `{}`, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, MsgValidationFailed, body["error"])
		details := body["details"].([]interface{})
		require.Len(t, details, 3)
		assert.Equal(t, "name", details[0].(map[string]interface{})["field"])
		assert.Equal(t, "email", details[1].(map[string]interface{})["field"])
		assert.Equal(t, "message", details[2].(map[string]interface{})["field"])
	})

	t.Run("空请求体按空表单校验", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Len(t, decode(t, rec)["details"], 3)
	})

	t.Run("姓名与留言过短", func(t *testing.T) {
		rec := srv.do(http.MethodPost, "/api/contact", `{"name":"J","email":"a@b.com","message":"short"}`, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		details := decode(t, rec)["details"].([]interface{})
		require.Len(t, details, 2)
		assert.Equal(t, "name", details[0].(map[string]interface{})["field"])
		assert.Equal(t, "message", details[1].(map[string]interface{})["field"])
	})

	t.Run("表单编码提交", func(t *testing.T) {
		form := "name=Ada+Lovelace&email=ada%40example.com&linkedinProfile=https%3A%2F%2Flinkedin.com%2Fin%2Fada&message=Let%27s+talk+about+engines."
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(form))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		data := decode(t, rec)["data"].(map[string]interface{})
		assert.Equal(t, false, data["emailSent"])
		assert.Equal(t, 1, store.Count())
	})

	t.Run("字段类型不符按字段报告", func(t *testing.T) {
		rec := srv.do(http.MethodPost, "/api/contact", `{"name":123,"email":["a@b.com"],"message":"long enough message"}`, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, MsgValidationFailed, body["error"])
		details := body["details"].([]interface{})
		require.Len(t, details, 2)
		name := details[0].(map[string]interface{})
		assert.Equal(t, "name", name["field"])
		assert.Equal(t, "123", name["value"])
		assert.Equal(t, "email", details[1].(map[string]interface{})["field"])
	})

	t.Run("数字电话转为字符串", func(t *testing.T) {
		rec := srv.do(http.MethodPost, "/api/contact", `{"name":"Ada Lovelace","email":"ada@example.com","phone":5551234567,"message":"long enough message"}`, nil)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, 2, store.Count())
	})
}

func TestSystemRoutes(t *testing.T) {
	srv := newTestServer(t, "development", submitFunc(func(context.Context, domain.SubmissionInput, domain.Provenance) (*service.Outcome, error) {
		return nil, nil
	}), memory.NewStore())

	t.Run("首页", func(t *testing.T) {
		rec := srv.do(http.MethodGet, "/", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "/api/contact", decode(t, rec)["endpoints"].(map[string]interface{})["contact"])
	})

	t.Run("健康检查", func(t *testing.T) {
		rec := srv.do(http.MethodGet, "/api/health", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "OK", body["status"])
		assert.Equal(t, "connected", body["database"])
		assert.Equal(t, float64(5000), body["port"])
		assert.Contains(t, body, "memory")
		assert.Contains(t, body, "uptime")
	})

	t.Run("联系路由自检", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/contact/health", "", nil).Code)
		assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/contact/test", "", nil).Code)
	})

	t.Run("CORS 回显", func(t *testing.T) {
		rec := srv.do(http.MethodGet, "/api/test", "", map[string]string{"Origin": "https://portfolio.example.com"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://portfolio.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "https://portfolio.example.com", decode(t, rec)["origin"])
		assert.Equal(t, "cross-origin", rec.Header().Get("Cross-Origin-Resource-Policy"))
	})

	t.Run("未知路由", func(t *testing.T) {
		rec := srv.do(http.MethodGet, "/api/unknown?x=1", "", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, MsgRouteNotFound, body["error"])
		assert.Equal(t, "Cannot GET /api/unknown?x=1", body["message"])
		assert.Len(t, body["availableRoutes"], 4)
	})

	t.Run("探针与指标", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health/live", "", nil).Code)
		assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health/ready", "", nil).Code)

		rec := srv.do(http.MethodGet, "/metrics", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "portfolio_http_requests_total")
	})
}

func TestSystemRoutes_DatabaseDisconnected(t *testing.T) {
	srv := newTestServer(t, "development", submitFunc(func(context.Context, domain.SubmissionInput, domain.Provenance) (*service.Outcome, error) {
		return nil, nil
	}), storage.NewOffline(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")))

	rec := srv.do(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disconnected", decode(t, rec)["database"])

	assert.Equal(t, http.StatusServiceUnavailable, srv.do(http.MethodGet, "/health/ready", "", nil).Code)
}

func TestCorsConfig(t *testing.T) {
	all := corsConfig(config.CORSConfig{AllowedOrigins: []string{"*"}})
	assert.True(t, all.AllowAllOrigins)
	assert.False(t, all.AllowCredentials)

	listed := corsConfig(config.CORSConfig{AllowedOrigins: []string{"https://a.example.com"}})
	assert.False(t, listed.AllowAllOrigins)
	assert.True(t, listed.AllowCredentials)
	assert.Equal(t, []string{"https://a.example.com"}, listed.AllowOrigins)
}
