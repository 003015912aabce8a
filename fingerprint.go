package sessiongate

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

const (
	fingerprintFieldLimit = 50
	fingerprintLimit      = 200
	unknownField          = "unknown"
)

// RequestMetadata is the subset of an HTTP request a device fingerprint is
// derived from.
type RequestMetadata struct {
	RemoteAddr     string
	ForwardedFor   string
	RealIP         string
	CFConnectingIP string
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	Accept         string
}

// MetadataFromRequest collects fingerprint inputs from r. Proxy headers are
// only read when trustProxy is true.
func MetadataFromRequest(r *http.Request, trustProxy bool) RequestMetadata {
	md := RequestMetadata{
		RemoteAddr:     r.RemoteAddr,
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
		Accept:         r.Header.Get("Accept"),
	}
	if trustProxy {
		md.ForwardedFor = r.Header.Get("X-Forwarded-For")
		md.RealIP = r.Header.Get("X-Real-IP")
		md.CFConnectingIP = r.Header.Get("CF-Connecting-IP")
	}
	return md
}

// Fingerprint derives a deterministic device identifier from md. It never
// fails: missing inputs become "unknown". Loopback clients are fingerprinted
// from headers alone.
func Fingerprint(md RequestMetadata) string {
	fields := make([]string, 0, 5)
	if ip := ClientIP(md); !isLoopback(ip) {
		fields = append(fields, ip)
	}
	fields = append(fields, md.UserAgent, md.AcceptLanguage, md.AcceptEncoding, md.Accept)

	for i, f := range fields {
		if f == "" {
			f = unknownField
		}
		if len(f) > fingerprintFieldLimit {
			f = f[:fingerprintFieldLimit]
		}
		fields[i] = f
	}

	b := []byte(strings.Join(fields, "_"))
	for i, c := range b {
		if !isFingerprintByte(c) {
			b[i] = '_'
		}
	}
	if len(b) > fingerprintLimit {
		b = b[:fingerprintLimit]
	}
	return string(b)
}

func isFingerprintByte(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_'
}

// ClientIP returns the client address: the first valid X-Forwarded-For entry,
// then X-Real-IP, then CF-Connecting-IP, then the host part of RemoteAddr.
func ClientIP(md RequestMetadata) string {
	// X-Forwarded-For is a comma-separated chain, client first.
	if md.ForwardedFor != "" {
		for _, part := range strings.Split(md.ForwardedFor, ",") {
			if ip := strings.TrimSpace(part); isValidIP(ip) {
				return ip
			}
		}
	}

	for _, h := range []string{md.RealIP, md.CFConnectingIP} {
		if ip := strings.TrimSpace(h); isValidIP(ip) {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(md.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return md.RemoteAddr
	}
	return host
}

// isValidIP checks if the string is a valid IP address.
func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// isLoopback reports whether addr carries no useful device information.
func isLoopback(addr string) bool {
	if addr == "" || strings.EqualFold(addr, "localhost") {
		return true
	}
	parsed := net.ParseIP(addr)
	return parsed != nil && parsed.IsLoopback()
}

// ExtractDeviceInfo fingerprints r and parses its user agent.
func ExtractDeviceInfo(r *http.Request, trustProxy bool) DeviceInfo {
	md := MetadataFromRequest(r, trustProxy)
	ua := md.UserAgent

	parsed := useragent.New(ua)
	browser, browserVersion := parsed.Browser()
	if browserVersion != "" {
		browser = browser + " " + browserVersion
	}

	osInfo := parsed.OSInfo()
	os := osInfo.Name
	if osInfo.Version != "" {
		os = os + " " + osInfo.Version
	}

	deviceType := "desktop"
	switch {
	case parsed.Bot():
		deviceType = "bot"
	case isTablet(ua):
		deviceType = "tablet"
	case parsed.Mobile():
		deviceType = "mobile"
	}

	return DeviceInfo{
		ID:         Fingerprint(md),
		IP:         ClientIP(md),
		UserAgent:  ua,
		Browser:    browser,
		OS:         os,
		DeviceType: deviceType,
	}
}

// isTablet checks if the user agent indicates a tablet device.
func isTablet(ua string) bool {
	ua = strings.ToLower(ua)
	for _, keyword := range []string{"ipad", "tablet", "playbook", "silk"} {
		if strings.Contains(ua, keyword) {
			return true
		}
	}
	return false
}
