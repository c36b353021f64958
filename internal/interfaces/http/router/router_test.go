package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	inventoryapp "github.com/erp/warehouse/internal/application/inventory"
	"github.com/erp/warehouse/internal/infrastructure/persistence/memory"
	"github.com/erp/warehouse/internal/interfaces/http/dto"
	"github.com/erp/warehouse/internal/interfaces/http/handler"
	"github.com/erp/warehouse/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/test/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, "test", group.Name())
	assert.Equal(t, "/test", group.Prefix())
}

func TestDomainGroupMiddleware(t *testing.T) {
	engine := gin.New()
	g := NewDomainGroup("guarded", "/guarded").
		Use(func(c *gin.Context) {
			c.Header("X-Guarded", "yes")
			c.Next()
		}).
		DELETE("/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	g.RegisterRoutes(engine.Group("/api/v1"))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/guarded/1", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "yes", w.Header().Get("X-Guarded"))
}

// newAPI wires the real service over the in-memory ledger
func newAPI(t *testing.T) *gin.Engine {
	return newAPIWithConfig(t, inventoryapp.ServiceConfig{})
}

func newAPIWithConfig(t *testing.T, cfg inventoryapp.ServiceConfig) *gin.Engine {
	t.Helper()
	log := zaptest.NewLogger(t)
	ledger := memory.NewStockLedger()
	orders := memory.NewOrderAllocationRepository()
	svc := inventoryapp.NewAllocationService(
		inventoryapp.NewNoOpTransactionScope(ledger, orders),
		orders,
		cfg,
		log,
	)

	engine, err := New(Config{
		ServiceName:  "warehouse-test",
		CORS:         middleware.DefaultCORSConfig(),
		MaxBodyBytes: 1 << 20,
	}, Handlers{
		Allocation: handler.NewAllocationHandler(svc),
		Stock:      handler.NewStockHandler(svc),
		Health:     handler.NewHealthHandler("memory"),
	}, log)
	require.NoError(t, err)
	return engine
}

func call(t *testing.T, engine *gin.Engine, method, path, body string) (int, dto.Response) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var resp dto.Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func TestAPI_OrderLifecycle(t *testing.T) {
	engine := newAPI(t)
	product := uuid.New()
	shelfA, shelfB := uuid.New(), uuid.New()
	orderID := uuid.New()
	orderPath := "/api/v1/orders/" + orderID.String() + "/allocation"
	lotsPath := "/api/v1/products/" + product.String() + "/lots"

	receive := func(location uuid.UUID, qty, expiry string) {
		status, resp := call(t, engine, http.MethodPost, "/api/v1/stock/lots", `{
			"product_id":"`+product.String()+`",
			"location_id":"`+location.String()+`",
			"quantity":`+qty+`,
			"expiry_date":"`+expiry+`",
			"unit_cost":"1.50"
		}`)
		require.Equal(t, http.StatusCreated, status, resp.Error)
	}
	receive(shelfA, "5", "2026-12-01")
	receive(shelfB, "5", "2026-11-01")

	status, resp := call(t, engine, http.MethodGet, lotsPath, "")
	require.Equal(t, http.StatusOK, status)
	data := resp.Data.(map[string]any)
	assert.EqualValues(t, 10, data["available"])
	lots := data["lots"].([]any)
	require.Len(t, lots, 2)
	assert.Equal(t, shelfB.String(), lots[0].(map[string]any)["location_id"], "earliest expiry first")

	status, resp = call(t, engine, http.MethodPost, orderPath,
		`{"items":[{"product_id":"`+product.String()+`","quantity":7}]}`)
	require.Equal(t, http.StatusCreated, status, resp.Error)
	assert.Equal(t, "ALLOCATED", resp.Data.(map[string]any)["status"])

	status, resp = call(t, engine, http.MethodPost, orderPath,
		`{"items":[{"product_id":"`+product.String()+`","quantity":1}]}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, dto.ErrCodeInvalidState, resp.Error.Code)

	status, resp = call(t, engine, http.MethodGet, lotsPath, "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 3, resp.Data.(map[string]any)["available"])

	status, resp = call(t, engine, http.MethodDelete, orderPath, "")
	require.Equal(t, http.StatusOK, status, resp.Error)
	assert.Equal(t, "RELEASED", resp.Data.(map[string]any)["status"])

	status, _ = call(t, engine, http.MethodDelete, orderPath, "")
	assert.Equal(t, http.StatusConflict, status)

	status, resp = call(t, engine, http.MethodGet, lotsPath, "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 10, resp.Data.(map[string]any)["available"])
}

func TestAPI_ReleaseLine(t *testing.T) {
	engine := newAPI(t)
	apples, pears := uuid.New(), uuid.New()
	orderID := uuid.New()
	orderPath := "/api/v1/orders/" + orderID.String() + "/allocation"

	available := func(product uuid.UUID) any {
		status, resp := call(t, engine, http.MethodGet, "/api/v1/products/"+product.String()+"/lots", "")
		require.Equal(t, http.StatusOK, status)
		return resp.Data.(map[string]any)["available"]
	}
	for _, product := range []uuid.UUID{apples, pears} {
		status, resp := call(t, engine, http.MethodPost, "/api/v1/stock/lots", `{
			"product_id":"`+product.String()+`",
			"location_id":"`+uuid.NewString()+`",
			"quantity":6
		}`)
		require.Equal(t, http.StatusCreated, status, resp.Error)
	}

	status, resp := call(t, engine, http.MethodPost, orderPath, `{"items":[
		{"product_id":"`+apples.String()+`","quantity":2},
		{"product_id":"`+pears.String()+`","quantity":4}
	]}`)
	require.Equal(t, http.StatusCreated, status, resp.Error)

	status, resp = call(t, engine, http.MethodDelete, orderPath+"/lines/1", "")
	require.Equal(t, http.StatusOK, status, resp.Error)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "ALLOCATED", data["status"])
	assert.EqualValues(t, 2, data["held_quantity"])
	lines := data["lines"].([]any)
	assert.Equal(t, false, lines[0].(map[string]any)["released"])
	assert.Equal(t, true, lines[1].(map[string]any)["released"])
	assert.EqualValues(t, 4, available(apples))
	assert.EqualValues(t, 6, available(pears))

	status, _ = call(t, engine, http.MethodDelete, orderPath+"/lines/1", "")
	assert.Equal(t, http.StatusConflict, status)
	status, _ = call(t, engine, http.MethodDelete, orderPath+"/lines/2", "")
	assert.Equal(t, http.StatusNotFound, status)

	// cancelling returns only the line still held
	status, resp = call(t, engine, http.MethodDelete, orderPath, "")
	require.Equal(t, http.StatusOK, status, resp.Error)
	assert.Equal(t, "RELEASED", resp.Data.(map[string]any)["status"])
	assert.EqualValues(t, 6, available(apples))
	assert.EqualValues(t, 6, available(pears))
}

func TestAPI_RemoveLot(t *testing.T) {
	fallback := uuid.New()
	engine := newAPIWithConfig(t, inventoryapp.ServiceConfig{FallbackLocationID: fallback})
	product := uuid.New()
	lotsPath := "/api/v1/products/" + product.String() + "/lots"
	orderPath := "/api/v1/orders/" + uuid.NewString() + "/allocation"

	status, resp := call(t, engine, http.MethodPost, "/api/v1/stock/lots", `{
		"product_id":"`+product.String()+`",
		"location_id":"`+uuid.NewString()+`",
		"quantity":3,
		"expiry_date":"2026-12-01"
	}`)
	require.Equal(t, http.StatusCreated, status, resp.Error)
	lotID := resp.Data.(map[string]any)["id"].(string)

	status, resp = call(t, engine, http.MethodDelete, lotsPath+"/"+lotID, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, dto.ErrCodeInvalidState, resp.Error.Code)

	status, resp = call(t, engine, http.MethodPost, orderPath,
		`{"items":[{"product_id":"`+product.String()+`","quantity":3}]}`)
	require.Equal(t, http.StatusCreated, status, resp.Error)

	status, resp = call(t, engine, http.MethodDelete, lotsPath+"/"+lotID, "")
	require.Equal(t, http.StatusOK, status, resp.Error)

	status, _ = call(t, engine, http.MethodDelete, "/api/v1/products/"+uuid.NewString()+"/lots/"+lotID, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, resp = call(t, engine, http.MethodDelete, orderPath, "")
	require.Equal(t, http.StatusOK, status, resp.Error)

	status, resp = call(t, engine, http.MethodGet, lotsPath, "")
	require.Equal(t, http.StatusOK, status)
	data := resp.Data.(map[string]any)
	assert.EqualValues(t, 3, data["available"])
	lots := data["lots"].([]any)
	require.Len(t, lots, 1)
	assert.Equal(t, fallback.String(), lots[0].(map[string]any)["location_id"])
	assert.Nil(t, lots[0].(map[string]any)["expiry_date"])
}

func TestAPI_InsufficientStock(t *testing.T) {
	engine := newAPI(t)
	product := uuid.New()

	status, resp := call(t, engine, http.MethodPost, "/api/v1/stock/lots", `{
		"product_id":"`+product.String()+`",
		"location_id":"`+uuid.NewString()+`",
		"quantity":2
	}`)
	require.Equal(t, http.StatusCreated, status, resp.Error)

	orderPath := "/api/v1/orders/" + uuid.NewString() + "/allocation"
	status, resp = call(t, engine, http.MethodPost, orderPath,
		`{"items":[{"product_id":"`+product.String()+`","quantity":5}]}`)

	assert.Equal(t, http.StatusUnprocessableEntity, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeInsufficientStock, resp.Error.Code)
	assert.EqualValues(t, 3, resp.Error.Details["shortfall"])
	assert.NotEmpty(t, resp.Error.RequestID)

	status, resp = call(t, engine, http.MethodGet, orderPath, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
}

func TestAPI_Health(t *testing.T) {
	engine := newAPI(t)

	status, resp := call(t, engine, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	assert.Equal(t, "memory", resp.Data.(map[string]any)["backend"])
}
