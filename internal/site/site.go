package site

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
)

//go:embed web/*
var content embed.FS

// Sitemap maps each served file to its content type. Nothing outside it is
// served.
var Sitemap = map[string]string{
	"app.html":   "text/html; charset=utf-8",
	"p1.html":    "text/html; charset=utf-8",
	"p1.js":      "application/javascript",
	"loading.js": "application/javascript",
}

// Handler returns an http.Handler for the site, expecting paths with the
// /site prefix already stripped (e.g. "/p1.html").
//
// When dir is non-empty and names a directory, files are read from it on
// every request so the pages can be edited without a rebuild. Otherwise the
// embedded copies are served.
//
// Unknown paths answer 404 with no body and Connection: close.
// Panics if the embedded assets cannot be loaded (build error).
func Handler(dir string) http.Handler {
	var files fs.FS
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			files = os.DirFS(dir)
		}
	}
	if files == nil {
		sub, err := fs.Sub(content, "web")
		if err != nil {
			panic(fmt.Sprintf("site: failed to load embedded web assets: %v", err))
		}
		files = sub
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := trimSlash(r.URL.Path)
		contentType, ok := Sitemap[name]
		if !ok {
			notFound(w)
			return
		}

		data, err := fs.ReadFile(files, name)
		if err != nil {
			notFound(w)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			w.Write(data) //nolint:errcheck // Client disconnects are not actionable
		}
	})
}

func trimSlash(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Connection", "close")
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusNotFound)
}
