package proxy

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labelzoom/edge-gateway/internal/requestid"
)

// Trust headers injected on forwarded requests. The backend trusts these
// implicitly, so the gateway is the only party allowed to set them: any
// caller-supplied value is stripped before the overlay is applied.
const (
	HeaderIP           = "X-LZ-IP"
	HeaderSecretKey    = "X-LZ-Secret-Key"
	HeaderOriginalHost = "X-LZ-Original-Host"
)

var trustHeaders = []string{requestid.Header, HeaderIP, HeaderSecretKey, HeaderOriginalHost}

// Forwarder transparently forwards requests that matched no local route to
// the backend origin.
type Forwarder struct {
	baseURL   string
	secretKey string
	client    *http.Client
	logger    *slog.Logger
}

// NewForwarder builds a forwarder for the given backend origin. Redirect
// handling is manual: the origin's redirects are returned verbatim and the
// redirect normalizer upstream decides what the client sees.
func NewForwarder(baseURL, secretKey string, logger *slog.Logger) (*Forwarder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("forwarder requires a backend base URL")
	}

	return &Forwarder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client: &http.Client{
			Timeout: 60 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}, nil
}

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	outURL := f.baseURL + r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		outURL += "?" + r.URL.RawQuery
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, outURL, r.Body)
	if err != nil {
		f.logger.Error("failed to build backend request", slog.String("error", err.Error()))
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	out.Header = r.Header.Clone()

	// The overlay always wins: callers cannot forge trust headers.
	for _, h := range trustHeaders {
		out.Header.Del(h)
	}
	out.Header.Set(requestid.Header, requestid.FromContext(r.Context()))
	out.Header.Set(HeaderIP, clientIP(r))
	out.Header.Set(HeaderSecretKey, f.secretKey)
	if origHost := r.Header.Get("X-Forwarded-Host"); origHost != "" {
		out.Header.Set(HeaderOriginalHost, origHost)
	}

	resp, err := f.client.Do(out)
	if err != nil {
		f.logger.Error("backend unreachable",
			slog.String("url", outURL),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		w.Header()[k] = vv
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		// Headers are already sent; nothing to do but note it.
		f.logger.Warn("error streaming backend response", slog.String("error", err.Error()))
	}
}

// clientIP resolves the caller's IP from the first present of the
// connecting-IP header or the forwarded-for chain. Empty when neither is
// set; the gateway does not fall back to the TCP peer, which would be the
// fronting layer's address.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("Cf-Connecting-Ip"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return ""
}
