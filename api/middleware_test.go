package api

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func gzipBody(t *testing.T, body string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(body)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return &buf
}

func TestGzipRequestMiddlewareDecompresses(t *testing.T) {
	e := echo.New()
	body := `{"id":"c1","op":"menu","data":""}`
	req := httptest.NewRequest(http.MethodPost, "/api/frames", gzipBody(t, body))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got string
	next := func(c echo.Context) error {
		raw, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		got = string(raw)
		return nil
	}

	if err := GzipRequestMiddleware()(next)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if got != body {
		t.Fatalf("decompressed body = %q, want %q", got, body)
	}
	if enc := c.Request().Header.Get(echo.HeaderContentEncoding); enc != "" {
		t.Fatalf("content encoding should be cleared, got %q", enc)
	}
}

func TestGzipRequestMiddlewareRejectsInvalidGzip(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/frames", strings.NewReader("not gzip"))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	next := func(c echo.Context) error { return nil }
	err := GzipRequestMiddleware()(next)(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}

func TestGzipRequestMiddlewarePassthrough(t *testing.T) {
	e := echo.New()
	body := `{"op":"menu"}`
	req := httptest.NewRequest(http.MethodPost, "/api/frames", strings.NewReader(body))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got string
	next := func(c echo.Context) error {
		raw, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		got = string(raw)
		return nil
	}

	if err := GzipRequestMiddleware()(next)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if got != body {
		t.Fatalf("body = %q, want %q", got, body)
	}
}
