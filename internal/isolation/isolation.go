// Package isolation stamps the response headers that make browsers treat a
// page as cross-origin isolated. COOP plus COEP unlock the features gated on
// crossOriginIsolated (SharedArrayBuffer, high-resolution timers), and the
// wildcard CORS header lets the served assets load from any origin.
package isolation

import "net/http"

// stamped is the full header set, applied to every response the server
// produces. The values are fixed: these exact strings are what browsers
// check before granting isolation.
var stamped = [...]struct{ name, value string }{
	{"Access-Control-Allow-Origin", "*"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Cross-Origin-Embedder-Policy", "require-corp"},
}

// Wrap returns a handler that stamps the isolation headers on every response
// next produces, whatever its status, method, or path. The headers are set
// before next runs and set again when the status line is finalized, so next
// can neither drop them nor override them with different values.
func Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setAll(w.Header())
		next.ServeHTTP(&stampWriter{ResponseWriter: w}, r)
	})
}

func setAll(h http.Header) {
	for _, s := range stamped {
		h.Set(s.name, s.value)
	}
}

// stampWriter re-applies the isolation headers at the moment the response
// header block is committed. Set replaces rather than appends, so each
// header appears exactly once no matter what the inner handler did.
type stampWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *stampWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		setAll(w.Header())
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *stampWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Flush finalizes the headers first, mirroring what the underlying writer
// does on an implicit flush.
func (w *stampWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *stampWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
