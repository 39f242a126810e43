package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPharmacyContextRequiresHeader(t *testing.T) {
	mw := PharmacyContext(nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without pharmacy header")
	}
}

func TestPharmacyContextRejectsMalformedID(t *testing.T) {
	mw := PharmacyContext(nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("X-Pharmacy-Id", "not-a-uuid")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestPharmacyContextInjectsIdentifiers(t *testing.T) {
	mw := PharmacyContext(nil)
	const pharmacyID = "11111111-1111-1111-1111-111111111111"
	const actorID = "22222222-2222-2222-2222-222222222222"

	var gotPharmacy, gotActor string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPharmacy = PharmacyIDFromContext(r.Context())
		gotActor = ActorIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("X-Pharmacy-Id", pharmacyID)
	req.Header.Set("X-Actor-Id", actorID)
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if gotPharmacy != pharmacyID {
		t.Fatalf("expected pharmacy id %q got %q", pharmacyID, gotPharmacy)
	}
	if gotActor != actorID {
		t.Fatalf("expected actor id %q got %q", actorID, gotActor)
	}
}

func TestPharmacyContextRejectsMalformedActor(t *testing.T) {
	mw := PharmacyContext(nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("X-Pharmacy-Id", "11111111-1111-1111-1111-111111111111")
	req.Header.Set("X-Actor-Id", "bogus")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
