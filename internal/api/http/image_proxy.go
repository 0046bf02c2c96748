package apihttp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"animestream/catalog/internal/domain"
)

const (
	maxCoverBytes     = int64(10 << 20)
	coverCacheControl = "public, max-age=86400"
	maxCoverRedirects = 5
)

var (
	errHostNotAllowed = errors.New("url host not allowed")
	errBlockedAddress = errors.New("blocked url host")
)

// coverTypes are the formats card art arrives in. SVG is excluded since it
// can carry script.
var coverTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"image/avif": true,
}

// internalHostNames are the compose service names next to this service.
var internalHostNames = map[string]bool{
	"localhost":      true,
	"redis":          true,
	"anime-catalog":  true,
	"catalog-api":    true,
	"otel-collector": true,
}

// imageProxy serves cover art so browsers never contact image CDNs
// directly. The placeholder identifier is answered with 204 and the client
// renders its own placeholder.
type imageProxy struct {
	client    *http.Client
	allowed   []string
	userAgent string
	logger    *slog.Logger
}

func newImageProxy(allowed []string, userAgent string, logger *slog.Logger) *imageProxy {
	normalized := make([]string, 0, len(allowed))
	for _, host := range allowed {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			normalized = append(normalized, host)
		}
	}

	// Every dialed address is checked, so a public name resolving to a
	// private address is refused at connect time.
	dialer := &net.Dialer{
		Timeout:   8 * time.Second,
		KeepAlive: 30 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			addrPort, err := netip.ParseAddrPort(address)
			if err != nil {
				return errBlockedAddress
			}
			if blockedAddr(addrPort.Addr()) {
				return errBlockedAddress
			}
			return nil
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	proxy := &imageProxy{
		allowed:   normalized,
		userAgent: userAgent,
		logger:    logger,
	}
	proxy.client = &http.Client{
		Timeout:   12 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxCoverRedirects {
				return fmt.Errorf("stopped after %d redirects", maxCoverRedirects)
			}
			return proxy.check(req.URL)
		},
	}
	return proxy
}

func (p *imageProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/image" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	switch raw {
	case "":
		writeError(w, http.StatusBadRequest, "invalid_request", "missing url")
		return
	case domain.PlaceholderImage:
		w.Header().Set("Cache-Control", coverCacheControl)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	target, err := url.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid url")
		return
	}
	if err := p.check(target); err != nil {
		writeProxyRefusal(w, err)
		return
	}

	p.fetch(w, r, target)
}

func (p *imageProxy) fetch(w http.ResponseWriter, r *http.Request, target *url.URL) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid url")
		return
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*;q=0.8")
	for _, name := range []string{"If-None-Match", "If-Modified-Since"} {
		if value := r.Header.Get(name); value != "" {
			req.Header.Set(name, value)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, errBlockedAddress) || errors.Is(err, errHostNotAllowed) {
			writeProxyRefusal(w, err)
			return
		}
		p.logger.Debug("cover fetch failed", slog.String("host", target.Host), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to fetch image")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		copyValidators(w.Header(), resp.Header)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeError(w, http.StatusBadGateway, "upstream_error", fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode))
		return
	}
	if resp.ContentLength > maxCoverBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "image too large")
		return
	}

	body := io.LimitReader(resp.Body, maxCoverBytes)
	head := make([]byte, 512)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to read image")
		return
	}
	head = head[:n]

	contentType, ok := coverType(resp.Header.Get("Content-Type"), head)
	if !ok {
		writeError(w, http.StatusBadGateway, "upstream_error", "not an image")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", coverCacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	copyValidators(w.Header(), resp.Header)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(head)
	_, _ = io.Copy(w, body)
}

// check rejects what can be decided without the network: scheme, allow
// list, internal names and literal addresses.
func (p *imageProxy) check(u *url.URL) error {
	if u == nil {
		return errors.New("invalid url")
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return errors.New("unsupported url scheme")
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return errors.New("invalid url host")
	}
	if !hostAllowed(host, p.allowed) {
		return errHostNotAllowed
	}
	if internalHostNames[host] || strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".localhost") {
		return errBlockedAddress
	}
	if addr, err := netip.ParseAddr(host); err == nil && blockedAddr(addr) {
		return errBlockedAddress
	}
	return nil
}

func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return !addr.IsValid() ||
		addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified()
}

func writeProxyRefusal(w http.ResponseWriter, err error) {
	if errors.Is(err, errHostNotAllowed) {
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
}

// coverType prefers the declared type and falls back to sniffing.
func coverType(declared string, head []byte) (string, bool) {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && coverTypes[mediaType] {
		return mediaType, true
	}
	sniffed, _, _ := strings.Cut(http.DetectContentType(head), ";")
	if coverTypes[sniffed] {
		return sniffed, true
	}
	return "", false
}

func copyValidators(dst, src http.Header) {
	for _, name := range []string{"ETag", "Last-Modified"} {
		if value := src.Get(name); value != "" {
			dst.Set(name, value)
		}
	}
}

// hostAllowed reports whether host is one of allowed or a subdomain of one.
// An empty allow list admits every host.
func hostAllowed(host string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
	for _, candidate := range allowed {
		if host == candidate || strings.HasSuffix(host, "."+candidate) {
			return true
		}
	}
	return false
}
