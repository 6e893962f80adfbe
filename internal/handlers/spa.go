package handlers

import (
	"bytes"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"
)

// SPA serves the embedded page. Unknown extensionless paths fall back to
// index.html; anything under apiPrefix is left to the API router and 404s here.
func SPA(distFS fs.FS, apiPrefix string) (http.Handler, error) {
	indexBytes, err := fs.ReadFile(distFS, "index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded index.html: %w", err)
	}
	fileServer := http.FileServer(http.FS(distFS))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cleanPath := path.Clean("/" + r.URL.Path)
		switch {
		case apiPrefix != "" && (cleanPath == apiPrefix || strings.HasPrefix(cleanPath, apiPrefix+"/")):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		case cleanPath == "/":
			serveIndex(w, r, indexBytes)
		case isFile(distFS, strings.TrimPrefix(cleanPath, "/")), strings.Contains(path.Base(cleanPath), "."):
			fileServer.ServeHTTP(w, r)
		default:
			serveIndex(w, r, indexBytes)
		}
	}), nil
}

func isFile(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}

func serveIndex(w http.ResponseWriter, r *http.Request, index []byte) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "index.html", time.Time{}, bytes.NewReader(index))
}
