package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/C4T-BuT-S4D/promobot/internal/api"
	"github.com/C4T-BuT-S4D/promobot/internal/config"
	"github.com/C4T-BuT-S4D/promobot/internal/export"
	"github.com/C4T-BuT-S4D/promobot/internal/ledger"
	"github.com/C4T-BuT-S4D/promobot/internal/models"
	"github.com/C4T-BuT-S4D/promobot/internal/reconcile"
	"github.com/C4T-BuT-S4D/promobot/internal/storage"
	"github.com/C4T-BuT-S4D/promobot/internal/storage/storagetest"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const token = "s3cret"

type fixture struct {
	e      *echo.Echo
	store  *storage.Storage
	ledger *ledger.Ledger
	lock   *reconcile.MutexLocker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storagetest.New(t)
	cfg := &config.Config{APIToken: token, JobTimeout: 5 * time.Second}
	now := time.Date(2025, time.May, 20, 9, 0, 0, 0, time.UTC)
	l := ledger.New(store, regexp.MustCompile(`^[A-Z0-9-]{4,32}$`), time.UTC, ledger.WithClock(func() time.Time {
		return now
	}))
	window, err := reconcile.ParseWindow("2025-01-01", "2025-12-31", time.UTC)
	require.NoError(t, err)

	lock := reconcile.NewMutexLocker()
	svc := api.NewService(cfg, l, reconcile.NewEngine(store, reconcile.WithLocker(lock)), window, export.NewXLSX(time.UTC), store)

	e := echo.New()
	svc.Register(e)
	return &fixture{e: e, store: store, ledger: l, lock: lock}
}

func (f *fixture) do(t *testing.T, method, target, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seed(t *testing.T, codes ...string) {
	t.Helper()
	ctx := context.Background()
	user := &models.User{TelegramID: 1, ChatID: 1, Name: "Alice", Phone: "+998900000001", Address: "Tashkent"}
	require.NoError(t, f.store.SaveUser(ctx, user))
	for _, code := range codes {
		_, err := f.ledger.Redeem(ctx, user.ID, code)
		require.NoError(t, err)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequireToken(t *testing.T) {
	f := newFixture(t)
	for _, auth := range []string{"", "Bearer wrong", token, "Basic " + token} {
		rec := f.do(t, http.MethodGet, "/export", auth)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, auth)

		rec = f.do(t, http.MethodPost, "/reconcile", auth)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, auth)
	}
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	auth := "Bearer " + token

	rec := f.do(t, http.MethodGet, "/export", auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.seed(t, "CODE-0001", "CODE-0002")

	rec = f.do(t, http.MethodGet, "/export", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "5_2025.xlsx")

	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(book.GetSheetName(0))
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rec = f.do(t, http.MethodGet, "/export?month=4&year=2025", auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, q := range []string{"?month=13&year=2025", "?month=may&year=2025", "?month=5"} {
		rec = f.do(t, http.MethodGet, "/export"+q, auth)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	auth := "Bearer " + token
	f.seed(t, "CODE-0001", "CODE-0002")

	rec := f.do(t, http.MethodPost, "/reconcile", auth)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sequential int    `json:"sequential"`
		Random     int    `json:"random"`
		Latest     string `json:"latest"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Sequential)
	assert.Zero(t, resp.Random)
	assert.Equal(t, "2025-05-20 09:00:00", resp.Latest)

	release, err := f.lock.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	rec = f.do(t, http.MethodPost, "/reconcile", auth)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

type brokenPromos struct {
	*storage.Storage
}

func (brokenPromos) ListPromosBetween(context.Context, time.Time, time.Time) ([]*models.PromoCode, error) {
	return nil, errors.New("connection reset by peer")
}

func TestReconcileStorageFailure(t *testing.T) {
	store := storagetest.New(t)
	cfg := &config.Config{APIToken: token, JobTimeout: 5 * time.Second}
	l := ledger.New(store, regexp.MustCompile(`^[A-Z0-9-]{4,32}$`), time.UTC)
	window, err := reconcile.ParseWindow("2025-01-01", "2025-12-31", time.UTC)
	require.NoError(t, err)

	e := echo.New()
	api.NewService(cfg, l, reconcile.NewEngine(brokenPromos{store}), window, export.NewXLSX(time.UTC), store).Register(e)

	req := httptest.NewRequest(http.MethodPost, "/reconcile", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp struct {
		Kind   string `json:"kind"`
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "storage", resp.Kind)
	assert.Contains(t, resp.Detail, "connection reset by peer")
}
