package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"casavia/api/internal/authpw"
	"casavia/api/internal/config"
	"casavia/api/internal/intelligence"
	"casavia/api/internal/store"
	"casavia/api/internal/util"
)

type testEnv struct {
	t       *testing.T
	store   *memStore
	service *Service
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := newMemStore()
	cfg := config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
	svc := NewService(cfg, st, authpw.NewService(st), Options{
		Sessions:       newMemSessions(),
		InquiryLimiter: intelligence.NewMemoryLimiter(2, time.Minute),
	})
	t.Cleanup(svc.Close)
	server := NewHTTPServer(svc, "*")
	return &testEnv{t: t, store: st, service: svc, handler: server.Handler()}
}

// login creates a verified user with the given role and returns a session.
func (e *testEnv) login(role string) Session {
	e.t.Helper()
	id := util.NewID("usr")
	user := store.User{
		ID:              id,
		DisplayName:     role + " user",
		Email:           id + "@example.com",
		Role:            role,
		IsEmailVerified: true,
	}
	if err := e.store.CreateUser(context.Background(), user); err != nil {
		e.t.Fatalf("create user: %v", err)
	}
	session, err := e.service.CreateSession(context.Background(), id)
	if err != nil {
		e.t.Fatalf("create session: %v", err)
	}
	return session
}

func (e *testEnv) seedProperty(title string, priceCents int64, publish bool) store.Property {
	e.t.Helper()
	property, err := e.service.CreateProperty(context.Background(), PropertyInput{
		Title:      title,
		Type:       "sale",
		PriceCents: priceCents,
		City:       "Riverton",
		Bedrooms:   3,
	}, "seed")
	if err != nil {
		e.t.Fatalf("seed property: %v", err)
	}
	if publish {
		if err := e.service.UpdatePropertyStatus(context.Background(), property.ID, "published", "seed"); err != nil {
			e.t.Fatalf("publish property: %v", err)
		}
		property.Status = "published"
	}
	return property
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	rec = env.do(http.MethodGet, "/api/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready status = %d", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["ok"] != true {
		t.Fatalf("ready ok = %v", body["ok"])
	}
}

func TestPreflightHasNoBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodOptions, "/api/properties", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("preflight wrote a body: %q", rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS headers: %v", rec.Header())
	}
}

func TestSignUpVerifySignIn(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       "ana@example.com",
		"password":    "longenough",
		"displayName": "Ana",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d body=%s", rec.Code, rec.Body.String())
	}
	signup := decodeJSON(t, rec)
	verifyToken, _ := signup["devVerificationToken"].(string)
	if verifyToken == "" {
		t.Fatal("expected dev verification token when email is not configured")
	}

	// The first account becomes the admin.
	user, err := env.store.GetUserByEmail(context.Background(), "ana@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Role != "admin" {
		t.Fatalf("first user role = %q, want admin", user.Role)
	}

	// Sign-in is blocked until the email is verified.
	rec = env.do(http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email": "ana@example.com", "password": "longenough",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unverified signin status = %d", rec.Code)
	}

	rec = env.do(http.MethodPost, "/api/auth/verify-email", "", map[string]any{"token": verifyToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email": "ana@example.com", "password": "longenough",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signin status = %d body=%s", rec.Code, rec.Body.String())
	}
	signin := decodeJSON(t, rec)
	token, _ := signin["accessToken"].(string)
	if token == "" {
		t.Fatal("missing access token")
	}

	rec = env.do(http.MethodGet, "/api/session", token, nil)
	session := decodeJSON(t, rec)
	if session["authenticated"] != true || session["role"] != "admin" {
		t.Fatalf("session payload = %v", session)
	}
}

func TestRefreshRotationAndLogout(t *testing.T) {
	env := newTestEnv(t)
	session := env.login("admin")

	rec := env.do(http.MethodPost, "/api/session/refresh", "", map[string]any{
		"refreshToken": session.RefreshToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d body=%s", rec.Code, rec.Body.String())
	}
	refreshed := decodeJSON(t, rec)
	newRefresh, _ := refreshed["refreshToken"].(string)
	if newRefresh == "" || newRefresh == session.RefreshToken {
		t.Fatalf("refresh token not rotated")
	}

	// The old refresh token is burned on rotation.
	rec = env.do(http.MethodPost, "/api/session/refresh", "", map[string]any{
		"refreshToken": session.RefreshToken,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh status = %d", rec.Code)
	}

	newAccess, _ := refreshed["accessToken"].(string)
	rec = env.do(http.MethodPost, "/api/session/logout", newAccess, map[string]any{
		"refreshToken": newRefresh,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}

	// Logout revokes the access token too.
	rec = env.do(http.MethodGet, "/api/summary", newAccess, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked access token status = %d", rec.Code)
	}
}

func TestPublicPropertyVisibility(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login("admin")

	draft := env.seedProperty("Palermo Loft", 25_000_000, false)

	rec := env.do(http.MethodGet, "/api/public/properties", "", nil)
	body := decodeJSON(t, rec)
	if items, _ := body["properties"].([]any); len(items) != 0 {
		t.Fatalf("draft visible publicly: %v", items)
	}

	rec = env.do(http.MethodPost, "/api/properties/"+draft.ID+"/publish", admin.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/api/public/properties", "", nil)
	body = decodeJSON(t, rec)
	items, _ := body["properties"].([]any)
	if len(items) != 1 {
		t.Fatalf("published list size = %d", len(items))
	}

	// Lookup by listing code works on the public surface.
	rec = env.do(http.MethodGet, "/api/public/properties/"+draft.Code, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public get by code status = %d", rec.Code)
	}
	property := decodeJSON(t, rec)
	if property["status"] != "published" {
		t.Fatalf("public property status = %v", property["status"])
	}
	if _, exposed := property["ownerId"]; exposed {
		t.Fatal("public payload leaks ownerId")
	}

	hidden := env.seedProperty("Hidden Cottage", 10_000_000, false)
	rec = env.do(http.MethodGet, "/api/public/properties/"+hidden.ID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("draft direct fetch status = %d", rec.Code)
	}
}

func TestPropertyUpdatePersistsStatus(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login("admin")
	property := env.seedProperty("Garden Flat", 8_000_000, false)

	rec := env.do(http.MethodPut, "/api/properties/"+property.ID, admin.Token, map[string]any{
		"title":      "Garden Flat",
		"type":       "sale",
		"status":     "sold",
		"priceCents": 8_000_000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d body=%s", rec.Code, rec.Body.String())
	}
	updated := decodeJSON(t, rec)
	if updated["status"] != "sold" {
		t.Fatalf("response status = %v, want sold", updated["status"])
	}

	stored, err := env.store.GetProperty(context.Background(), property.ID)
	if err != nil {
		t.Fatalf("get property: %v", err)
	}
	if stored.Status != "sold" {
		t.Fatalf("stored status = %q, want sold", stored.Status)
	}
}

func TestPublicPriceFilterBoundsInclusive(t *testing.T) {
	env := newTestEnv(t)
	env.seedProperty("Low End", 10_000_000, true)
	env.seedProperty("Mid Range", 15_000_000, true)
	env.seedProperty("High End", 20_000_000, true)

	rec := env.do(http.MethodGet, "/api/public/properties?minPrice=10000000&maxPrice=15000000", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("filter status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	items, _ := body["properties"].([]any)
	if len(items) != 2 {
		t.Fatalf("closed-bound filter returned %d items, want 2", len(items))
	}

	rec = env.do(http.MethodGet, "/api/public/properties?minPrice=notanumber", "", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad minPrice status = %d", rec.Code)
	}
}

func TestViewerCannotWrite(t *testing.T) {
	env := newTestEnv(t)
	viewer := env.login("viewer")

	rec := env.do(http.MethodPost, "/api/properties", viewer.Token, map[string]any{
		"title": "Nope", "type": "sale", "priceCents": 100,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer create status = %d", rec.Code)
	}

	rec = env.do(http.MethodGet, "/api/properties", viewer.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("viewer list status = %d", rec.Code)
	}

	// Transactions require the finance action, which viewers lack entirely.
	rec = env.do(http.MethodGet, "/api/transactions", viewer.Token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer transactions status = %d", rec.Code)
	}

	rec = env.do(http.MethodPut, "/api/settings", viewer.Token, map[string]any{"agencyName": "X"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer settings status = %d", rec.Code)
	}
}

func TestSettingsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	agent := env.login("agent")
	admin := env.login("admin")

	rec := env.do(http.MethodPut, "/api/settings", agent.Token, map[string]any{"agencyName": "Rogue"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("agent settings status = %d", rec.Code)
	}

	rec = env.do(http.MethodPut, "/api/settings", admin.Token, map[string]any{"agencyName": "Casavia Realty"})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin settings status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/api/settings", agent.Token, nil)
	body := decodeJSON(t, rec)
	settings, _ := body["settings"].(map[string]any)
	if settings["agencyName"] != "Casavia Realty" {
		t.Fatalf("settings = %v", settings)
	}
}

func TestInquirySubmissionAndRateLimit(t *testing.T) {
	env := newTestEnv(t)
	property := env.seedProperty("Seaside Flat", 40_000_000, true)

	inquiry := map[string]any{
		"name":       "Sam Ortiz",
		"email":      "sam@example.com",
		"message":    "Is this still available?",
		"propertyId": property.ID,
	}

	// The limiter allows two per IP per window; httptest uses one RemoteAddr.
	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/api/public/inquiries", "", inquiry)
		if rec.Code != http.StatusCreated {
			t.Fatalf("inquiry %d status = %d body=%s", i, rec.Code, rec.Body.String())
		}
	}
	rec := env.do(http.MethodPost, "/api/public/inquiries", "", inquiry)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("rate limited status = %d", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["code"] != "RATE_LIMITED" {
		t.Fatalf("error code = %v", body["code"])
	}
}

func TestInquiryValidation(t *testing.T) {
	env := newTestEnv(t)
	draft := env.seedProperty("Unlisted House", 5_000_000, false)

	rec := env.do(http.MethodPost, "/api/public/inquiries", "", map[string]any{
		"name": "No Email", "email": "not-an-email", "message": "hi",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad email status = %d", rec.Code)
	}

	// Inquiries may only reference published listings.
	rec = env.do(http.MethodPost, "/api/public/inquiries", "", map[string]any{
		"name": "Sam", "email": "sam@example.com", "message": "hi", "propertyId": draft.ID,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("draft inquiry status = %d", rec.Code)
	}
}

func TestNeighborhoodDeleteBlockedWhileReferenced(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login("admin")

	rec := env.do(http.MethodPost, "/api/neighborhoods", admin.Token, map[string]any{
		"name": "Old Town", "city": "Riverton",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create neighborhood status = %d body=%s", rec.Code, rec.Body.String())
	}
	neighborhood := decodeJSON(t, rec)
	nbhID, _ := neighborhood["id"].(string)

	rec = env.do(http.MethodPost, "/api/properties", admin.Token, map[string]any{
		"title": "Old Town House", "type": "sale", "priceCents": 12_000_000, "neighborhoodId": nbhID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create property status = %d body=%s", rec.Code, rec.Body.String())
	}
	property := decodeJSON(t, rec)
	propID, _ := property["id"].(string)

	rec = env.do(http.MethodDelete, "/api/neighborhoods/"+nbhID, admin.Token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("delete referenced neighborhood status = %d", rec.Code)
	}

	rec = env.do(http.MethodDelete, "/api/properties/"+propID, admin.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete property status = %d", rec.Code)
	}
	rec = env.do(http.MethodDelete, "/api/neighborhoods/"+nbhID, admin.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete unreferenced neighborhood status = %d", rec.Code)
	}
}

func TestOwnerDeleteBlockedWhileReferenced(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login("admin")

	rec := env.do(http.MethodPost, "/api/owners", admin.Token, map[string]any{"name": "Marta Vidal"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create owner status = %d body=%s", rec.Code, rec.Body.String())
	}
	owner := decodeJSON(t, rec)
	ownerID, _ := owner["id"].(string)

	rec = env.do(http.MethodPost, "/api/properties", admin.Token, map[string]any{
		"title": "Vidal Duplex", "type": "rent", "priceCents": 250_000, "ownerId": ownerID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create property status = %d body=%s", rec.Code, rec.Body.String())
	}
	property := decodeJSON(t, rec)
	propID, _ := property["id"].(string)

	rec = env.do(http.MethodDelete, "/api/owners/"+ownerID, admin.Token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("delete referenced owner status = %d", rec.Code)
	}

	rec = env.do(http.MethodDelete, "/api/properties/"+propID, admin.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete property status = %d", rec.Code)
	}
	rec = env.do(http.MethodDelete, "/api/owners/"+ownerID, admin.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete unreferenced owner status = %d", rec.Code)
	}
}

func TestClientStageEndpoint(t *testing.T) {
	env := newTestEnv(t)
	agent := env.login("agent")

	rec := env.do(http.MethodPost, "/api/clients", agent.Token, map[string]any{"name": "Dana Reyes"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create client status = %d body=%s", rec.Code, rec.Body.String())
	}
	client := decodeJSON(t, rec)
	clientID, _ := client["id"].(string)
	if client["stage"] != "lead" {
		t.Fatalf("default stage = %v", client["stage"])
	}

	rec = env.do(http.MethodPost, "/api/clients/"+clientID+"/stage", agent.Token, map[string]any{"stage": "vip"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid stage status = %d", rec.Code)
	}

	rec = env.do(http.MethodPost, "/api/clients/"+clientID+"/stage", agent.Token, map[string]any{"stage": "active"})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid stage status = %d body=%s", rec.Code, rec.Body.String())
	}

	stored, err := env.store.GetClient(context.Background(), clientID)
	if err != nil || stored.Stage != "active" {
		t.Fatalf("stored stage = %q err = %v", stored.Stage, err)
	}
}

func TestTransactionsRequireFinance(t *testing.T) {
	env := newTestEnv(t)
	agent := env.login("agent")

	rec := env.do(http.MethodPost, "/api/transactions", agent.Token, map[string]any{
		"kind":        "sale",
		"amountCents": 5_000_000,
		"occurredOn":  "2026-08-01",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction status = %d body=%s", rec.Code, rec.Body.String())
	}
	created := decodeJSON(t, rec)
	if created["status"] != "pending" {
		t.Fatalf("default transaction status = %v", created["status"])
	}
	txnID, _ := created["id"].(string)

	rec = env.do(http.MethodPost, "/api/transactions/"+txnID+"/status", agent.Token, map[string]any{"status": "paid"})
	if rec.Code != http.StatusOK {
		t.Fatalf("mark paid status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestSearchUnavailableWithoutBackend(t *testing.T) {
	env := newTestEnv(t)
	agent := env.login("agent")

	rec := env.do(http.MethodGet, "/api/search?q=loft", agent.Token, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("search status = %d", rec.Code)
	}
}

// fakePlanner returns a canned structured proposal.
type fakePlanner struct {
	response string
}

func (p *fakePlanner) Plan(context.Context, string) (string, error) {
	return p.response, nil
}

func TestIntelligenceChatConfirmFlow(t *testing.T) {
	env := newTestEnv(t)
	agent := env.login("agent")
	property := env.seedProperty("Palermo Loft", 25_000_000, true)

	env.service.EnableIntelligence(&fakePlanner{
		response: `{"action":"update_price","entity":"Palermo Loft","fields":{"priceCents":30000000},"confidence":0.9,"reply":""}`,
	}, intelligence.NewMemoryLimiter(100, time.Minute), time.Minute)

	rec := env.do(http.MethodPost, "/api/intelligence/chat", agent.Token, map[string]any{
		"message": "set the price of palermo loft to 300000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d body=%s", rec.Code, rec.Body.String())
	}
	reply := decodeJSON(t, rec)
	pendingID, _ := reply["pendingId"].(string)
	if pendingID == "" {
		t.Fatalf("mutation was not parked: %v", reply)
	}
	if reply["executed"] == true {
		t.Fatal("mutation executed without confirmation")
	}

	// Nothing changes until the user confirms.
	stored, _ := env.store.GetProperty(context.Background(), property.ID)
	if stored.PriceCents != 25_000_000 {
		t.Fatalf("price changed before confirm: %d", stored.PriceCents)
	}

	rec = env.do(http.MethodGet, "/api/intelligence/pending", agent.Token, nil)
	pending := decodeJSON(t, rec)
	if pending["pending"] == nil {
		t.Fatal("pending action not visible")
	}

	rec = env.do(http.MethodPost, "/api/intelligence/confirm", agent.Token, map[string]any{
		"actionId": pendingID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d body=%s", rec.Code, rec.Body.String())
	}
	confirmed := decodeJSON(t, rec)
	if confirmed["executed"] != true {
		t.Fatalf("confirm reply = %v", confirmed)
	}

	stored, _ = env.store.GetProperty(context.Background(), property.ID)
	if stored.PriceCents != 30_000_000 {
		t.Fatalf("price after confirm = %d", stored.PriceCents)
	}

	events, _ := env.store.ListAuditEvents(context.Background(), "property", property.ID, 10)
	found := false
	for _, event := range events {
		if event.Action == "property.price" {
			found = true
		}
	}
	if !found {
		t.Fatal("price change was not audited")
	}

	// Confirming again finds nothing parked.
	rec = env.do(http.MethodPost, "/api/intelligence/confirm", agent.Token, map[string]any{
		"actionId": pendingID,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double confirm status = %d", rec.Code)
	}
}

func TestIntelligenceDisabled(t *testing.T) {
	env := newTestEnv(t)
	agent := env.login("agent")

	rec := env.do(http.MethodPost, "/api/intelligence/chat", agent.Token, map[string]any{"message": "hello"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled chat status = %d", rec.Code)
	}

	viewer := env.login("viewer")
	rec = env.do(http.MethodPost, "/api/intelligence/chat", viewer.Token, map[string]any{"message": "hello"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer chat status = %d", rec.Code)
	}
}
