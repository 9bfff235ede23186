package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-bookstore/internal/apperr"
	"github.com/imrishuroy/go-bookstore/internal/aws/awstest"
	"github.com/imrishuroy/go-bookstore/internal/catalog"
	"github.com/imrishuroy/go-bookstore/internal/checkout"
	"github.com/imrishuroy/go-bookstore/internal/idempotency"
	"github.com/imrishuroy/go-bookstore/internal/orders"
	"github.com/imrishuroy/go-bookstore/internal/payment"
	"github.com/imrishuroy/go-bookstore/internal/uploads"
)

const (
	testSecret    = "test_secret"
	testAdminPass = "letmein"
)

type stubGateway struct {
	err error
}

func (stubGateway) KeyID() string { return "rzp_test_key" }

func (g stubGateway) CreateOrder(ctx context.Context, req payment.CreateOrderRequest) (*payment.GatewayOrder, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &payment.GatewayOrder{ID: "order_GW" + req.Receipt, Amount: req.Amount, Currency: req.Currency}, nil
}

type testEnv struct {
	router  *gin.Engine
	orders  *orders.Store
	catalog *catalog.Store
}

func newEnv(t *testing.T, gw payment.Gateway, adminPass string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := awstest.NewDynamo(map[string]string{
		"books":       "slug",
		"orders":      "order_id",
		"idempotency": "idempotency_key",
	})
	env := &testEnv{
		orders:  orders.NewStore(db, "orders"),
		catalog: catalog.NewStore(db, "books"),
	}
	svc := checkout.NewService(checkout.Options{
		Gateway:     gw,
		KeySecret:   testSecret,
		Orders:      env.orders,
		Idempotency: idempotency.NewStore(db, "idempotency", time.Hour),
	})
	r := gin.New()
	RegisterRoutes(r, HandlerConfig{
		Checkout:      svc,
		Catalog:       env.catalog,
		Uploads:       uploads.NewSigner(uploads.Credentials{CloudName: "demo", APIKey: "k", APISecret: "s"}),
		AdminPassword: adminPass,
	})
	env.router = r
	return env
}

func (e *testEnv) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

var cartBody = map[string]interface{}{
	"items": []map[string]interface{}{
		{"slug": "cbse-maths-101", "title": "CBSE Maths", "price": 199, "qty": 2},
		{"slug": "poems", "title": "Poems", "price": 50, "qty": 1},
	},
	"name":  "Asha",
	"email": "asha@example.com",
}

func TestHealth(t *testing.T) {
	env := newEnv(t, stubGateway{}, testAdminPass)
	w := env.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestCreateOrder_Created(t *testing.T) {
	env := newEnv(t, stubGateway{}, testAdminPass)
	w := env.do(http.MethodPost, "/orders", cartBody, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	order := body["order"].(map[string]interface{})
	assert.Equal(t, float64(44800), order["amount"])
	assert.Equal(t, "INR", order["currency"])
	assert.NotEmpty(t, order["id"])
	assert.NotEmpty(t, order["gatewayOrderId"])
	assert.Equal(t, "rzp_test_key", body["publicKey"])
	assert.NotNil(t, body["gatewayEcho"])
}

func TestCreateOrder_MissingFields(t *testing.T) {
	env := newEnv(t, stubGateway{}, testAdminPass)
	w := env.do(http.MethodPost, "/orders", map[string]interface{}{"name": "Asha"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", decode(t, w)["error"])

	w = env.do(http.MethodPost, "/orders", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrder_GatewayFailureIs502(t *testing.T) {
	env := newEnv(t, stubGateway{err: apperr.Upstream("payment gateway rejected order", `{"error":"x"}`, nil)}, testAdminPass)
	w := env.do(http.MethodPost, "/orders", cartBody, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), `{"error":"x"}`)
}

func TestCreateOrder_GatewayNotConfiguredIs500(t *testing.T) {
	env := newEnv(t, nil, testAdminPass)
	w := env.do(http.MethodPost, "/orders", cartBody, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCreateOrder_IdempotencyKeyReplays(t *testing.T) {
	env := newEnv(t, stubGateway{}, testAdminPass)
	h := map[string]string{"Idempotency-Key": "abc-123"}

	first := env.do(http.MethodPost, "/orders", cartBody, h)
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	second := env.do(http.MethodPost, "/orders", cartBody, h)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func createOrder(t *testing.T, env *testEnv) (string, string) {
	t.Helper()
	w := env.do(http.MethodPost, "/orders", cartBody, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	order := decode(t, w)["order"].(map[string]interface{})
	return order["id"].(string), order["gatewayOrderId"].(string)
}

func TestVerifyPayment(t *testing.T) {
	env := newEnv(t, stubGateway{}, testAdminPass)
	id, gwID := createOrder(t, env)

	w := env.do(http.MethodPost, "/verify-payment", map[string]string{
		"razorpay_payment_id": "pay_1",
		"razorpay_order_id":   gwID,
		"razorpay_signature":  payment.Sign(testSecret, gwID, "pay_1"),
		"orderId":             id,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "paid", body["order"].(map[string]interface{})["status"])

	// contradicting outcome after paid
	w = env.do(http.MethodPost, "/verify-payment", map[string]string{
		"paymentId": "pay_2", "gatewayOrderId": gwID, "signature": "bad", "orderId": id,
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestVerifyPayment_BadSignature(t *testing.T) {
	env := newEnv(t, stubGateway{}, testAdminPass)
	id, gwID := createOrder(t, env)

	w := env.do(http.MethodPost, "/verify-payment", map[string]string{
		"paymentId": "pay_1", "gatewayOrderId": gwID, "signature": "bad", "orderId": id,
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "failed", body["order"].(map[string]interface{})["status"])
}

func TestVerifyPayment_MissingAndUnknown(t *testing.T) {
	env := newEnv(t, stubGateway{}, testAdminPass)

	w := env.do(http.MethodPost, "/verify-payment", map[string]string{"paymentId": "p"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/verify-payment", map[string]string{
		"paymentId": "p", "gatewayOrderId": "g", "signature": "s", "orderId": "ghost",
	}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func newBook(slug string) map[string]interface{} {
	return map[string]interface{}{"title": "CBSE Maths", "slug": slug, "price": 199, "category": "school"}
}

func TestCreateBook_Auth(t *testing.T) {
	env := newEnv(t, stubGateway{}, testAdminPass)

	w := env.do(http.MethodPost, "/books", newBook("maths"), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/books", newBook("maths"), map[string]string{"X-Admin-Pass": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	unset := newEnv(t, stubGateway{}, "")
	w = unset.do(http.MethodPost, "/books", newBook("maths"), map[string]string{"X-Admin-Pass": "anything"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCreateBook_CreatedConflictAndValidation(t *testing.T) {
	env := newEnv(t, stubGateway{}, testAdminPass)
	admin := map[string]string{"X-Admin-Pass": testAdminPass}

	w := env.do(http.MethodPost, "/books", newBook("CBSE-Maths-101"), admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "cbse-maths-101", decode(t, w)["book"].(map[string]interface{})["slug"])

	w = env.do(http.MethodPost, "/books", newBook("cbse-maths-101"), admin)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPost, "/books", map[string]interface{}{"slug": "x"}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndGetBooks(t *testing.T) {
	env := newEnv(t, stubGateway{}, testAdminPass)
	ctx := context.Background()
	require.NoError(t, env.catalog.Create(ctx, &catalog.Book{Slug: "cbse-maths-101", Title: "Maths", Category: "school", Price: 1}))
	require.NoError(t, env.catalog.Create(ctx, &catalog.Book{Slug: "c-plus-plus", Title: "C++ Primer", Category: "tech", Price: 1}))

	w := env.do(http.MethodGet, "/books?q=c%2B%2B", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(1), body["page"])
	assert.Equal(t, float64(catalog.DefaultLimit), body["limit"])

	w = env.do(http.MethodGet, "/books?category=school&limit=5", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	for _, q := range []string{"page=0", "page=abc", "limit=-1"} {
		w = env.do(http.MethodGet, "/books?"+q, nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}

	w = env.do(http.MethodGet, "/books/CBSE-Maths-101", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Maths", decode(t, w)["book"].(map[string]interface{})["title"])

	w = env.do(http.MethodGet, "/books/cbse-maths", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSignUpload(t *testing.T) {
	env := newEnv(t, stubGateway{}, testAdminPass)

	w := env.do(http.MethodPost, "/uploads/sign", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/uploads/sign", map[string]string{"folder": "covers", "resource_type": "image"},
		map[string]string{"X-Admin-Pass": testAdminPass})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "covers", body["folder"])
	assert.Equal(t, "image", body["resource_type"])
	assert.NotEmpty(t, body["signature"])

	w = env.do(http.MethodPost, "/uploads/sign", map[string]string{"resource_type": "pdf"},
		map[string]string{"X-Admin-Pass": testAdminPass})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
