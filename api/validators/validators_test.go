package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type addRequest struct {
	Model string `json:"model" validate:"required,max=64"`
	Score int    `json:"score" validate:"min=1,max=5"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"model":"iPhone15","score":3}`))
	var body addRequest
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Model != "iPhone15" || body.Score != 3 {
		t.Fatalf("unexpected body %+v", body)
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"score":9}`))
	err := DecodeJSONBody(req, &addRequest{})
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok || details["model"] != "is required" || details["score"] != "must be at most 5" {
		t.Fatalf("unexpected details %+v", pkgerrors.As(err).Details())
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"model":"x","extra":true}`))
	if err := DecodeJSONBody(req, &addRequest{}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected unknown fields to be rejected, got %v", err)
	}
}

func TestParseOptionalDate(t *testing.T) {
	d, err := ParseOptionalDate("changeDate", "")
	if err != nil || d != nil {
		t.Fatalf("expected nil date for empty input, got %v %v", d, err)
	}
	d, err = ParseOptionalDate("changeDate", "2024-02-29")
	if err != nil || d.String() != "2024-02-29" {
		t.Fatalf("unexpected parse result %v %v", d, err)
	}
	if _, err := ParseOptionalDate("changeDate", "29/02/2024"); !pkgerrors.Is(err, pkgerrors.CodeDate) {
		t.Fatalf("expected date error, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc": "abc",
		"bearer  x ": "x",
		"raw":        "raw",
	}
	for in, want := range cases {
		got, err := BearerToken(in)
		if err != nil || got != want {
			t.Fatalf("BearerToken(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := BearerToken("Bearer "); err == nil {
		t.Fatal("expected empty token to fail")
	}
}

func TestQueryString(t *testing.T) {
	req := httptest.NewRequest("GET", "/?grouping=%20category%20", nil)
	if got := QueryString(req, "grouping"); got != "category" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}
