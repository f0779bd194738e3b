package pagination

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params.PageSize != DefaultPageSize || params.PageToken != "" || !params.Cursor.IsZero() {
		t.Fatalf("unexpected defaults %+v", params)
	}
}

func TestParsePageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 10, MaxPageSize: 40}
	values := url.Values{"page_size": {"30"}}
	params, err := Parse(values, opts)
	if err != nil || params.PageSize != 30 {
		t.Fatalf("expected 30, got %d err=%v", params.PageSize, err)
	}
	values.Set("page_size", "400")
	params, _ = Parse(values, opts)
	if params.PageSize != 40 {
		t.Fatalf("expected clamp to 40, got %d", params.PageSize)
	}
	for _, bad := range []string{"abc", "0", "-3"} {
		values.Set("page_size", bad)
		if _, err := Parse(values, opts); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("page_size %q: expected ErrInvalidPageSize, got %v", bad, err)
		}
	}
}

func TestTokenRoundTripThroughRequest(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), ID: "ord_1"}
	token := EncodeToken(cursor)
	if token == "" {
		t.Fatalf("expected token")
	}
	req := httptest.NewRequest("GET", "/api/v1/orders?page_token="+token, nil)
	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("from request: %v", err)
	}
	if params.Cursor.ID != "ord_1" || !params.Cursor.CreatedAt.Equal(cursor.CreatedAt) {
		t.Fatalf("unexpected cursor %+v", params.Cursor)
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%", "bm90LWpzb24", EncodeToken(Cursor{CreatedAt: time.Now()})} {
		if _, err := DecodeToken(token); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("token %q: expected ErrInvalidPageToken, got %v", token, err)
		}
	}
	if EncodeToken(Cursor{}) != "" {
		t.Fatalf("zero cursor should encode to empty token")
	}
}
