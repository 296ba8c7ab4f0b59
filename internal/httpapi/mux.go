package httpapi

import (
	"log/slog"
	"net/http"
	"os"
)

// NewMux registers the health check and, when staticDir exists, the static
// file server. Feature modules add their own routes.
func NewMux(db Pinger, staticDir string, pollers []PollerStatus) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, pollers)
	registerStatic(mux, staticDir)
	return mux
}

func registerStatic(mux *http.ServeMux, staticDir string) {
	if staticDir == "" {
		return
	}
	info, err := os.Stat(staticDir)
	if err != nil || !info.IsDir() {
		slog.Debug("static dir not found, not serving /static/", "dir", staticDir)
		return
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
}
