// Package web embeds the chat shell page served by the daemon.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
)

//go:embed all:dist
var distFS embed.FS

// ShellHandler serves the embedded shell. Unknown paths get index.html so
// the shell can be opened on any route; the page itself is never cached so
// a daemon upgrade is picked up on reload.
func ShellHandler() http.Handler {
	shellFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	files := http.FileServerFS(shellFS)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)[1:]
		if name == "" || !fs.ValidPath(name) {
			name = "index.html"
		}
		if _, err := fs.Stat(shellFS, name); err != nil {
			name = "index.html"
		}
		if name == "index.html" {
			w.Header().Set("Cache-Control", "no-cache")
			http.ServeFileFS(w, r, shellFS, name)
			return
		}
		files.ServeHTTP(w, r)
	})
}
