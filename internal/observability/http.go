package observability

import (
	"net"
	"net/http"
	"strings"
)

const (
	HeaderDeviceID  = "X-Device-Id"
	HeaderRequestID = "X-Request-Id"
)

// ClientMeta identifies the client behind a request in lifecycle events.
type ClientMeta struct {
	DeviceID  string
	IP        string
	RequestID string
}

func ClientMetaFromRequest(r *http.Request) ClientMeta {
	return ClientMeta{
		DeviceID:  r.Header.Get(HeaderDeviceID),
		IP:        IPFromRequest(r),
		RequestID: r.Header.Get(HeaderRequestID),
	}
}

// IPFromRequest prefers the first X-Forwarded-For hop, then X-Real-Ip, then
// the socket peer.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
