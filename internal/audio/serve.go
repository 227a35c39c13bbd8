package audio

import (
	"net/http"
	"strings"
)

// Handler serves artifacts read-only. Mount it with the URL prefix stripped so
// that the request path is "/<filename>". Anything that is not an artifact
// name (directories, temp files, traversal attempts) is a 404.
func (s *Store) Handler() http.Handler {
	fileServer := http.FileServer(http.Dir(s.dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if !IsArtifactName(name) {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "audio/mpeg")
		fileServer.ServeHTTP(w, r)
	})
}
