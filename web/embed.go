// Package web embeds the HTML templates and static assets and provides the
// HTTP handlers that serve the assets.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed all:static
var staticFS embed.FS

// Templates returns the page templates rooted at templates/.
func Templates() fs.FS {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic("web: failed to create templates sub filesystem: " + err.Error())
	}
	return sub
}

// Static returns the static assets rooted at static/.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("web: failed to create static sub filesystem: " + err.Error())
	}
	return sub
}

// StaticHandler serves the embedded assets under prefix. Directory listings
// and missing files get notFound.
func StaticHandler(prefix string, notFound http.Handler) http.Handler {
	subFS := Static()
	fileServer := http.StripPrefix(prefix, http.FileServer(http.FS(subFS)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")

		info, err := fs.Stat(subFS, path)
		if err != nil || info.IsDir() {
			notFound.ServeHTTP(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// FileHandler serves a single embedded asset with a fixed content type.
func FileHandler(name, contentType string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := fs.ReadFile(Static(), name)
		if err != nil {
			slog.Error("web: embedded asset missing", "name", name, "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			slog.Debug("web: failed to write asset", "name", name, "error", err)
		}
	})
}
