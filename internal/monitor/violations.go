package monitor

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
)

// handleViolation serves a stored snapshot by filename. Only base names are
// accepted so the handler cannot reach outside the violations directory.
func (s *Server) handleViolation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || filepath.Ext(name) != ".jpg" {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(s.cfg.ViolationsDir, name)
	if !fileExists(path) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
