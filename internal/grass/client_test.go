package grass

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDeviceIDIsStable(t *testing.T) {
	a := DeviceID("a@example.com")
	if a != DeviceID("a@example.com") {
		t.Fatal("device id must not change between runs")
	}
	if a == DeviceID("b@example.com") {
		t.Fatal("different accounts must get different device ids")
	}
	if len(a) != 36 {
		t.Fatalf("device id %q is not a uuid", a)
	}
}

func TestTokenFromLink(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://app.getgrass.io/confirm?token=abc123", "abc123"},
		{"https://app.getgrass.io/confirm/email/abc123", "abc123"},
		{"  https://app.getgrass.io/verify?token=t1&x=2 ", "t1"},
	}
	for _, tt := range tests {
		got, err := tokenFromLink(tt.link)
		if err != nil {
			t.Fatalf("tokenFromLink(%q): %v", tt.link, err)
		}
		if got != tt.want {
			t.Fatalf("tokenFromLink(%q) = %q, want %q", tt.link, got, tt.want)
		}
	}
}

func TestTokenFromLinkRejectsEmpty(t *testing.T) {
	if _, err := tokenFromLink("https://app.getgrass.io/"); err == nil {
		t.Fatal("expected error for link without a token")
	}
}

func TestEnvelopeErrMessage(t *testing.T) {
	var resp envelope[struct{}]
	if err := json.Unmarshal([]byte(`{"error":{"message":"email taken"}}`), &resp); err != nil {
		t.Fatal(err)
	}
	if got := resp.errMessage("500 fallback"); got != "email taken" {
		t.Fatalf("errMessage = %q", got)
	}

	var empty envelope[struct{}]
	if got := empty.errMessage("500 fallback"); got != "500 fallback" {
		t.Fatalf("errMessage fallback = %q", got)
	}
}

func TestEnvelopeUnwrapsData(t *testing.T) {
	var resp envelope[loginData]
	body := `{"result":{"data":{"userId":"u1","accessToken":"tok"}}}`
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Result.Data.UserID != "u1" || resp.Result.Data.AccessToken != "tok" {
		t.Fatalf("data = %+v", resp.Result.Data)
	}
}

func TestErrorTypesMatchWithAs(t *testing.T) {
	var loginErr *LoginError
	if !errors.As(error(&LoginError{Email: "a@example.com", Reason: "bad password"}), &loginErr) {
		t.Fatal("LoginError should match errors.As")
	}

	var regErr *RegistrationError
	if !errors.As(error(&RegistrationError{Email: "a@example.com", Reason: "taken"}), &regErr) {
		t.Fatal("RegistrationError should match errors.As")
	}
}
