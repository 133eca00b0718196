package site

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHandlerServesSitemap(t *testing.T) {
	handler := Handler("")

	for name, contentType := range Sitemap {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/"+name, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("GET /%s: status %d, want 200", name, w.Code)
			}
			if got := w.Header().Get("Content-Type"); got != contentType {
				t.Errorf("Content-Type = %q, want %q", got, contentType)
			}
			if w.Body.Len() == 0 {
				t.Error("empty body")
			}
		})
	}
}

func TestHandlerPageReferencesScripts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/p1.html", nil)
	w := httptest.NewRecorder()
	Handler("").ServeHTTP(w, req)

	body := w.Body.String()
	for _, want := range []string{"/site/p1.js", "/site/loading.js", "init-session-form"} {
		if !strings.Contains(body, want) {
			t.Errorf("p1.html does not contain %q", want)
		}
	}
}

func TestHandlerHead(t *testing.T) {
	req := httptest.NewRequest(http.MethodHead, "/app.html", nil)
	w := httptest.NewRecorder()
	Handler("").ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("HEAD status = %d, want 200", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("HEAD body length = %d, want 0", w.Body.Len())
	}
	if w.Header().Get("Content-Length") == "0" {
		t.Error("HEAD Content-Length should describe the GET body")
	}
}

func TestHandlerUnknownPath(t *testing.T) {
	for _, path := range []string{"/", "/index.html", "/web/p1.js", "/../site.go"} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.URL.Path = path
		w := httptest.NewRecorder()
		Handler("").ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s: status %d, want 404", path, w.Code)
		}
		if w.Body.Len() != 0 {
			t.Errorf("GET %s: body not empty", path)
		}
		if w.Header().Get("Connection") != "close" {
			t.Errorf("GET %s: missing Connection: close", path)
		}
	}
}

func TestHandlerDevDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.html"), []byte("<p>dev</p>"), 0o600); err != nil {
		t.Fatal(err)
	}

	handler := Handler(dir)

	req := httptest.NewRequest(http.MethodGet, "/app.html", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Body.String() != "<p>dev</p>" {
		t.Errorf("body = %q, want dev copy", w.Body.String())
	}

	// Sitemap entries missing from the directory are 404, not embedded.
	req = httptest.NewRequest(http.MethodGet, "/p1.js", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing dev file status = %d, want 404", w.Code)
	}
}

func TestHandlerMissingDirFallsBack(t *testing.T) {
	handler := Handler(filepath.Join(t.TempDir(), "nope"))

	req := httptest.NewRequest(http.MethodGet, "/loading.js", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 from embedded assets", w.Code)
	}
}
