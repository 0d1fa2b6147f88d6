package middleware

import (
	"fmt"
	"net/http"
)

// CacheControl lets clients cache successful GET responses for maxAge
// seconds. Responses are marked private because every response also carries
// the visitor's session. Non-2xx responses, and responses whose handler
// called SkipCache, keep the Cache-Control set further out.
func CacheControl(maxAge int) func(http.Handler) http.Handler {
	value := fmt.Sprintf("private, max-age=%d", maxAge)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(&cacheWriter{ResponseWriter: w, value: value}, r)
		})
	}
}

// SkipCache keeps an enclosing CacheControl from marking this response
// cacheable, e.g. for a degraded result served with 200. It must be called
// before the header is written.
func SkipCache(w http.ResponseWriter) {
	for {
		if cw, ok := w.(*cacheWriter); ok {
			cw.skip = true
			return
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return
		}
		w = u.Unwrap()
	}
}

type cacheWriter struct {
	http.ResponseWriter
	value   string
	skip    bool
	written bool
}

func (cw *cacheWriter) WriteHeader(code int) {
	if !cw.written {
		cw.written = true
		if !cw.skip && code >= 200 && code < 300 {
			cw.Header().Set("Cache-Control", cw.value)
		}
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *cacheWriter) Write(b []byte) (int, error) {
	if !cw.written {
		cw.WriteHeader(http.StatusOK)
	}
	return cw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (cw *cacheWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

// NoStore forbids caching of per-session responses such as the cart.
func NoStore() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
