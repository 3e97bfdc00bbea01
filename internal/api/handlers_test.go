package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/salestrack/internal/auth"
	"example.com/salestrack/internal/domain"
	"example.com/salestrack/internal/persistence/memory"
	authlib "example.com/salestrack/pkg/auth"
)

var (
	testAuthConfig = authlib.Config{Secret: "0123456789abcdef0123456789abcdef", Issuer: "salestrack-test"}
	fixedNow       = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "h:" + password, nil }

func (plainHasher) Compare(hash, password string) error {
	if hash != "h:"+password {
		return errors.New("mismatch")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	handler http.Handler
	store   *memory.Store
	issuer  *authlib.Issuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	service := domain.NewService(store, plainHasher{}, domain.WithClock(func() time.Time { return fixedNow }))
	issuer := authlib.NewIssuer(testAuthConfig, time.Hour, 24*time.Hour)

	mux := http.NewServeMux()
	NewHandler(service, issuer, discardLogger()).RegisterRoutes(mux)
	handler := Chain(mux,
		RequestID,
		ClientIP(false),
		AccessLog(discardLogger()),
		NewRateLimiter(0, 0).Middleware,
		auth.NewMiddleware(testAuthConfig).Wrap,
	)
	return &testServer{handler: handler, store: store, issuer: issuer}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) signUp(t *testing.T, username string) authlib.TokenPair {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/v1/auth/register", "", RegisterRequest{Username: username, Password: "password1", Password2: "password1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodPost, "/v1/auth/login", "", LoginRequest{Username: username, Password: "password1"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var pair authlib.TokenPair
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pair))
	return pair
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func i64(v int64) *int64 { return &v }

func TestSummaryEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	pair := srv.signUp(t, "tanaka")

	for i, c := range []struct{ call, catch, acq int64 }{{10, 5, 1}, {20, 10, 2}, {30, 15, 3}} {
		rr := srv.do(t, http.MethodPost, "/v1/records", pair.Access, map[string]interface{}{
			"record_date":       time.Date(2025, time.June, i+1, 0, 0, 0, 0, time.UTC).Format(time.DateOnly),
			"call_count":        c.call,
			"catch_count":       c.catch,
			"acquisition_count": c.acq,
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := srv.do(t, http.MethodGet, "/v1/summary/monthly", pair.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[SummaryResponse](t, rr)
	require.Equal(t, "2025-06-15", resp.ReferenceDate.Format(time.DateOnly))
	require.Equal(t, int64(60), resp.Monthly.Details.TotalCall)
	require.Equal(t, int64(30), resp.Monthly.Details.TotalCatch)
	require.Equal(t, int64(6), resp.Monthly.Details.TotalAcquisition)
	require.Equal(t, 20.0, resp.Monthly.AcquisitionRate)
	require.Equal(t, 30, resp.Monthly.DaysInMonth)
	require.Len(t, resp.DailyRecords, 3)
	require.Equal(t, int64(10), resp.DailyRecords[0].CallCount)

	// Viewing the summary must not create a target row.
	require.Zero(t, srv.store.TargetCount(subjectOf(t, pair)))
}

func subjectOf(t *testing.T, pair authlib.TokenPair) string {
	t.Helper()
	claims, err := authlib.ParseAccess(pair.Access, testAuthConfig)
	require.NoError(t, err)
	return claims.Subject
}

func TestShortMonthUsesActualLength(t *testing.T) {
	srv := newTestServer(t)
	pair := srv.signUp(t, "suzuki")

	rr := srv.do(t, http.MethodGet, "/v1/summary/monthly?date=2025-02-10", pair.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[SummaryResponse](t, rr)
	require.Equal(t, 28, resp.Monthly.DaysInMonth)
	require.Equal(t, 10, resp.Monthly.ElapsedDays)
	require.Empty(t, resp.DailyRecords)
	require.Zero(t, resp.Monthly.AcquisitionRate)
}

func TestDailySummary(t *testing.T) {
	srv := newTestServer(t)
	pair := srv.signUp(t, "suzuki")

	rr := srv.do(t, http.MethodPost, "/v1/records", pair.Access, map[string]interface{}{
		"catch_count":       40,
		"acquisition_count": 8,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = srv.do(t, http.MethodGet, "/v1/summary/daily", pair.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[DailySummaryResponse](t, rr)
	require.Equal(t, "2025-06-15", resp.ReferenceDate.Format(time.DateOnly))
	require.Equal(t, int64(40), resp.Daily.Details.DailyCatch)
	require.Equal(t, 20.0, resp.Daily.AcquisitionRate)

	rr = srv.do(t, http.MethodGet, "/v1/summary/daily?date=15-06-2025", pair.Access, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecordLifecycle(t *testing.T) {
	srv := newTestServer(t)
	pair := srv.signUp(t, "tanaka")

	rr := srv.do(t, http.MethodPost, "/v1/records", pair.Access, map[string]interface{}{
		"call_count":  12,
		"catch_count": nil,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[RecordView](t, rr)
	require.Equal(t, "tanaka", created.InputName)
	require.Equal(t, "2025-06-15", created.RecordDate.Format(time.DateOnly))
	require.Equal(t, created.RecordDate, created.OperationDate)
	require.Zero(t, created.CatchCount)

	path := "/v1/records/" + jsonNumber(created.ID)

	rr = srv.do(t, http.MethodPatch, path, pair.Access, RecordRequest{CounterFields: CounterFields{CatchCount: i64(7)}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	patched := decode[RecordView](t, rr)
	require.Equal(t, int64(12), patched.CallCount)
	require.Equal(t, int64(7), patched.CatchCount)

	rr = srv.do(t, http.MethodPut, path, pair.Access, RecordRequest{CounterFields: CounterFields{CallCount: i64(1)}})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "validation_failed")

	rr = srv.do(t, http.MethodPatch, path, pair.Access, RecordRequest{CounterFields: CounterFields{CallCount: i64(-1)}})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(t, http.MethodGet, path, pair.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = srv.do(t, http.MethodDelete, path, pair.Access, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	other := srv.signUp(t, "sato")
	rr = srv.do(t, http.MethodGet, path, other.Access, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	rr = srv.do(t, http.MethodPatch, path, other.Access, RecordRequest{CounterFields: CounterFields{CallCount: i64(99)}})
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/records", other.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, decode[ListRecordsResponse](t, rr).Items)
}

func TestListRecordsFiltersAndPages(t *testing.T) {
	srv := newTestServer(t)
	pair := srv.signUp(t, "tanaka")

	for _, date := range []string{"2025-06-01", "2025-06-02", "2025-06-02", "2025-06-03"} {
		rr := srv.do(t, http.MethodPost, "/v1/records", pair.Access, map[string]interface{}{"record_date": date})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := srv.do(t, http.MethodGet, "/v1/records?date=2025-06-02", pair.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[ListRecordsResponse](t, rr).Items, 2)

	rr = srv.do(t, http.MethodGet, "/v1/records?limit=3", pair.Access, nil)
	page := decode[ListRecordsResponse](t, rr)
	require.Len(t, page.Items, 3)
	require.Equal(t, "2025-06-03", page.Items[0].RecordDate.Format(time.DateOnly))
	require.NotEmpty(t, page.NextCursor)

	rr = srv.do(t, http.MethodGet, "/v1/records?limit=3&cursor="+page.NextCursor, pair.Access, nil)
	rest := decode[ListRecordsResponse](t, rr)
	require.Len(t, rest.Items, 1)
	require.Equal(t, "2025-06-01", rest.Items[0].RecordDate.Format(time.DateOnly))

	rr = srv.do(t, http.MethodGet, "/v1/records?cursor=bm90LWEtY3Vyc29y", pair.Access, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTargetGetOrCreateAndUpdate(t *testing.T) {
	srv := newTestServer(t)
	pair := srv.signUp(t, "tanaka")
	userID := subjectOf(t, pair)

	rr := srv.do(t, http.MethodGet, "/v1/targets/2025-06", pair.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	first := decode[TargetView](t, rr)
	require.Equal(t, "2025-06", first.YearMonth)
	require.Zero(t, first.TargetAcquisition)
	require.Equal(t, 1, srv.store.TargetCount(userID))

	rr = srv.do(t, http.MethodPut, "/v1/targets?year_month=2025-06", pair.Access, TargetRequest{TargetAcquisition: i64(90)})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[TargetView](t, rr)
	require.Equal(t, first.ID, updated.ID)
	require.Equal(t, int64(90), updated.TargetAcquisition)
	require.Equal(t, 1, srv.store.TargetCount(userID))

	rr = srv.do(t, http.MethodGet, "/v1/summary/monthly", pair.Access, nil)
	require.Equal(t, int64(90), decode[SummaryResponse](t, rr).Monthly.TargetAcquisition)

	rr = srv.do(t, http.MethodPatch, "/v1/targets/2025-06", pair.Access, TargetRequest{TargetAcquisition: i64(-5)})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(t, http.MethodPatch, "/v1/targets/2025-06", pair.Access, TargetRequest{})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/targets/2025-13", pair.Access, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "validation_failed")
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t)
	pair := srv.signUp(t, "tanaka")

	rr := srv.do(t, http.MethodPost, "/v1/auth/register", "", RegisterRequest{Username: "tanaka", Password: "password1", Password2: "password1"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(t, http.MethodPost, "/v1/auth/login", "", LoginRequest{Username: "tanaka", Password: "nope-nope"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/auth/me", pair.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "tanaka", decode[UserView](t, rr).Username)

	rr = srv.do(t, http.MethodPost, "/v1/auth/token/verify", "", VerifyRequest{Token: pair.Access})
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{}`, rr.Body.String())

	rr = srv.do(t, http.MethodPost, "/v1/auth/token/verify", "", VerifyRequest{Token: "garbage"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), `"unauthorized"`)

	rr = srv.do(t, http.MethodPost, "/v1/auth/token/refresh", "", RefreshRequest{Refresh: pair.Refresh})
	require.Equal(t, http.StatusOK, rr.Code)
	rotated := decode[authlib.TokenPair](t, rr)
	require.NotEmpty(t, rotated.Access)
	require.NotEmpty(t, rotated.Refresh)

	rr = srv.do(t, http.MethodPost, "/v1/auth/token/refresh", "", RefreshRequest{Refresh: pair.Access})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/records", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/records", pair.Refresh, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMissingScopeIsForbidden(t *testing.T) {
	service := domain.NewService(memory.NewStore(), plainHasher{})
	handler := NewHandler(service, authlib.NewIssuer(testAuthConfig, 0, 0), discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/v1/records", bytes.NewReader([]byte(`{}`)))
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
		Subject:   "user-1",
		TokenType: authlib.TokenTypeAccess,
		Scopes:    map[string]struct{}{auth.ScopeRecordsRead: {}},
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	rr := httptest.NewRecorder()
	handler.records(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

type failingStore struct {
	*memory.Store
}

func (failingStore) SumCounters(ctx context.Context, userID string, from, to time.Time) (domain.Counters, error) {
	return domain.Counters{}, errors.New("connection reset by peer")
}

func TestSummaryStoreFailureHidesCause(t *testing.T) {
	service := domain.NewService(failingStore{memory.NewStore()}, plainHasher{})
	var logs bytes.Buffer
	handler := NewHandler(service, authlib.NewIssuer(testAuthConfig, 0, 0), slog.New(slog.NewJSONHandler(&logs, nil)))

	req := httptest.NewRequest(http.MethodGet, "/v1/summary/monthly", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
		Subject:   "user-1",
		TokenType: authlib.TokenTypeAccess,
		Scopes:    map[string]struct{}{auth.ScopeSummaryRead: {}},
	}))

	rr := httptest.NewRecorder()
	handler.monthlySummary(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.JSONEq(t, `{"type":"server_error","detail":"unable to compute summary"}`, rr.Body.String())
	require.NotContains(t, rr.Body.String(), "connection reset")
	require.Contains(t, logs.String(), "connection reset")
	require.Equal(t, 1, strings.Count(logs.String(), `"component"`), logs.String())
}

func TestAuthEndpointsAreRateLimited(t *testing.T) {
	mux := http.NewServeMux()
	service := domain.NewService(memory.NewStore(), plainHasher{})
	NewHandler(service, authlib.NewIssuer(testAuthConfig, 0, 0), discardLogger()).RegisterRoutes(mux)
	handler := Chain(mux, NewRateLimiter(1, 2).Middleware)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader([]byte(`{"username":"x","password":"y"}`)))
		req.RemoteAddr = "203.0.113.7:5555"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestForwardedForIsIgnoredUnlessProxyTrusted(t *testing.T) {
	loginFrom := func(handler http.Handler, remote, forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader([]byte(`{"username":"x","password":"y"}`)))
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", forwarded)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}
	newHandler := func(trustProxy bool) http.Handler {
		mux := http.NewServeMux()
		service := domain.NewService(memory.NewStore(), plainHasher{})
		NewHandler(service, authlib.NewIssuer(testAuthConfig, 0, 0), discardLogger()).RegisterRoutes(mux)
		return Chain(mux, ClientIP(trustProxy), NewRateLimiter(1, 2).Middleware)
	}

	t.Run("untrusted", func(t *testing.T) {
		handler := newHandler(false)
		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			codes = append(codes, loginFrom(handler, "203.0.113.7:5555", fmt.Sprintf("198.51.100.%d", i+1)))
		}
		require.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes,
			"a rotating X-Forwarded-For must not reset the limit")
	})

	t.Run("trusted proxy", func(t *testing.T) {
		handler := newHandler(true)
		for i := 0; i < 3; i++ {
			require.Equal(t, http.StatusUnauthorized, loginFrom(handler, "10.0.0.2:443", fmt.Sprintf("198.51.100.%d", i+1)))
		}
		require.Equal(t, http.StatusUnauthorized, loginFrom(handler, "10.0.0.2:443", "198.51.100.9, 10.0.0.1"))
		require.Equal(t, http.StatusUnauthorized, loginFrom(handler, "10.0.0.2:443", "198.51.100.9"))
		require.Equal(t, http.StatusTooManyRequests, loginFrom(handler, "10.0.0.2:443", "198.51.100.9"))
	})
}

func TestRequestIDIsPropagated(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	srv.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
}

func TestRouteOf(t *testing.T) {
	require.Equal(t, "/v1/records/{id}", routeOf("/v1/records/42"))
	require.Equal(t, "/v1/targets/{id}", routeOf("/v1/targets/2025-06"))
	require.Equal(t, "/v1/summary/monthly", routeOf("/v1/summary/monthly"))
}

func jsonNumber(v int64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
