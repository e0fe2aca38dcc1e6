package msgraph

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func TestTokenStore_RoundTrip(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "nested", "tokens.json"))

	tokens, err := store.Load()
	if err != nil || tokens != nil {
		t.Fatalf("Load on missing file = %v, %v", tokens, err)
	}

	want := &TokenData{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second)}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AccessToken != "a" || got.RefreshToken != "r" || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("got %+v", got)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestTokenData_IsExpired(t *testing.T) {
	if !(&TokenData{ExpiresAt: time.Now().Add(time.Minute)}).IsExpired() {
		t.Error("token expiring within 5 minutes should count as expired")
	}
	if (&TokenData{ExpiresAt: time.Now().Add(time.Hour)}).IsExpired() {
		t.Error("token valid for an hour should not be expired")
	}
}

func TestAuth_EnsureValidToken_Refreshes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contoso/oauth2/v2.0/token" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.Form.Get("refresh_token") != "old-refresh" {
			t.Errorf("refresh_token = %q", r.Form.Get("refresh_token"))
		}
		io.WriteString(w, `{"access_token": "fresh", "expires_in": 3600}`)
	}))
	defer srv.Close()

	store := NewTokenStore(filepath.Join(t.TempDir(), "tokens.json"))
	if err := store.Save(&TokenData{AccessToken: "stale", RefreshToken: "old-refresh", ExpiresAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}

	a := NewAuth("client", "contoso", store, nil)
	a.SetAuthority(srv.URL + "/")

	token, err := a.EnsureValidToken(context.Background())
	if err != nil {
		t.Fatalf("EnsureValidToken: %v", err)
	}
	if token != "fresh" {
		t.Errorf("token = %q", token)
	}

	cached, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cached.AccessToken != "fresh" || cached.RefreshToken != "old-refresh" {
		t.Errorf("cached = %+v, want refresh token kept", cached)
	}
}

func TestAuth_Login(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/common/oauth2/v2.0/devicecode":
			io.WriteString(w, `{"device_code": "dc", "user_code": "ABCD", "verification_uri": "https://microsoft.com/devicelogin", "expires_in": 60, "interval": 1}`)
		case "/common/oauth2/v2.0/token":
			io.WriteString(w, `{"access_token": "at", "refresh_token": "rt", "expires_in": 3600}`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	store := NewTokenStore(filepath.Join(t.TempDir(), "tokens.json"))
	a := NewAuth("client", "", store, nil)
	a.SetAuthority(srv.URL)

	var prompted string
	err := a.Login(context.Background(), func(dc *DeviceCodeResponse) { prompted = dc.UserCode })
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if prompted != "ABCD" {
		t.Errorf("prompted = %q", prompted)
	}
	tokens, err := store.Load()
	if err != nil || tokens == nil || tokens.AccessToken != "at" {
		t.Errorf("cached tokens = %+v, %v", tokens, err)
	}
}
