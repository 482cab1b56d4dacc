package server

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
)

// WebSocketConn is the subset of a websocket connection the status push
// loops need.
type WebSocketConn interface {
	io.Closer
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// trustedHost reports whether an origin hostname may open a status socket:
// loopback names, the host the request itself was addressed to, and private
// LAN addresses. The ducker runs on trusted desktops and LANs.
func trustedHost(host, requestHost string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}

	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate()
	}
	return false
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Same-origin requests carry no Origin header.
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || !trustedHost(u.Hostname(), r.Host) {
		slog.Warn("rejected WebSocket connection", "origin", origin)
		return false
	}
	return true
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}
