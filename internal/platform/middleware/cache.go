package middleware

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CacheConfig controls the revalidation headers stamped on GET responses.
type CacheConfig struct {
	MaxAge       int      // max-age in seconds
	Private      bool     // per-recipient responses, not shared-cacheable
	NoStore      bool     // forbid storing entirely
	VaryHeaders  []string // headers that key cached variants
	ExcludePaths []string // exact paths that never get cache headers
}

// DefaultCacheConfig suits the token-gated report endpoints: a shared report
// only changes when a clinician annotates it, so clients revalidate with
// If-None-Match instead of refetching the full body.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxAge:      300,
		Private:     true,
		VaryHeaders: []string{"Accept", "Authorization"},
	}
}

// etagWriter buffers the response body so its ETag can be computed before
// anything reaches the wire.
type etagWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (w *etagWriter) Write(b []byte) (int, error) { return w.body.Write(b) }
func (w *etagWriter) WriteHeader(code int)        { w.status = code }
func (w *etagWriter) Flush()                      {}

// release writes the buffered status and body through to the client.
func (w *etagWriter) release() error {
	w.ResponseWriter.WriteHeader(w.status)
	if w.body.Len() > 0 {
		_, err := w.ResponseWriter.Write(w.body.Bytes())
		return err
	}
	return nil
}

// ETagMiddleware stamps successful GET and HEAD responses with ETag,
// Cache-Control and Vary headers, and answers If-None-Match revalidation
// requests with 304 Not Modified.
func ETagMiddleware(config CacheConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}
			if shouldSkip(req.URL.Path, config.ExcludePaths) {
				return next(c)
			}

			res := c.Response()
			orig := res.Writer
			w := &etagWriter{ResponseWriter: orig, status: http.StatusOK}
			res.Writer = w

			if err := next(c); err != nil {
				res.Writer = orig
				return err
			}
			res.Writer = orig

			// Error responses pass through without cache headers.
			if w.status >= 400 {
				return w.release()
			}

			res.Header().Set("Cache-Control", buildCacheControl(config))
			if len(config.VaryHeaders) > 0 {
				res.Header().Set("Vary", strings.Join(config.VaryHeaders, ", "))
			}

			etag := computeETag(w.body.Bytes())
			res.Header().Set("ETag", etag)
			if match := req.Header.Get("If-None-Match"); match != "" && etagMatch(match, etag) {
				orig.WriteHeader(http.StatusNotModified)
				return nil
			}
			return w.release()
		}
	}
}

// computeETag returns a weak ETag over the response body.
func computeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf(`W/"%x"`, sum[:16])
}

func shouldSkip(path string, excludes []string) bool {
	for _, ex := range excludes {
		if path == ex {
			return true
		}
	}
	return false
}

func buildCacheControl(config CacheConfig) string {
	var parts []string
	if config.NoStore {
		parts = append(parts, "no-store")
	}
	if config.Private {
		parts = append(parts, "private")
	} else {
		parts = append(parts, "public")
	}
	parts = append(parts, fmt.Sprintf("max-age=%d", config.MaxAge))
	return strings.Join(parts, ", ")
}

// etagMatch reports whether an If-None-Match header value covers the given
// ETag. Handles comma-separated candidate lists, the "*" wildcard, and weak
// comparison (W/"x" matches "x").
func etagMatch(headerVal, etag string) bool {
	headerVal = strings.TrimSpace(headerVal)
	if headerVal == "*" {
		return true
	}
	for _, candidate := range strings.Split(headerVal, ",") {
		candidate = strings.TrimSpace(candidate)
		if strings.TrimPrefix(candidate, "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}
