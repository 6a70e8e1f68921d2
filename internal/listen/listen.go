// Package listen はIB_LISTENの設定文字列を解析し、net.Listenerを生成する。
//
// 設定文字列は次のいずれか。
//
//	http://localhost:3000
//	socket:///path/to/socket.sock (unix:///path/to/socket.sock)
//	3000
package listen

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/netutil"
)

const (
	// DefaultPort はURLにポートがない場合のポート。
	DefaultPort = 3000

	NetworkTCP  = "tcp"
	NetworkUnix = "unix"
)

var portPattern = regexp.MustCompile(`^[0-9]+$`)

// Address は解析済みのリッスン先。
type Address struct {
	Network string
	Address string
}

func (a Address) String() string {
	return a.Network + "://" + a.Address
}

// Parse は設定文字列をAddressに変換する。
func Parse(s string) (Address, error) {
	config := strings.ToLower(strings.TrimSpace(s))

	switch {
	case strings.HasPrefix(config, "http:") || strings.HasPrefix(config, "https:"):
		u, err := url.Parse(config)
		if err != nil {
			return Address{}, fmt.Errorf("invalid listen url %q: %w", s, err)
		}
		port := DefaultPort
		if p := u.Port(); p != "" {
			if port, err = parsePort(p); err != nil {
				return Address{}, err
			}
		}
		return Address{Network: NetworkTCP, Address: net.JoinHostPort(u.Hostname(), strconv.Itoa(port))}, nil

	case strings.HasPrefix(config, "socket:") || strings.HasPrefix(config, "unix:"):
		u, err := url.Parse(config)
		if err != nil {
			return Address{}, fmt.Errorf("invalid listen url %q: %w", s, err)
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == "" {
			return Address{}, fmt.Errorf("listening configuration for UNIX socket did not have path: %q", s)
		}
		return Address{Network: NetworkUnix, Address: path}, nil

	case portPattern.MatchString(config):
		port, err := parsePort(config)
		if err != nil {
			return Address{}, err
		}
		return Address{Network: NetworkTCP, Address: ":" + strconv.Itoa(port)}, nil
	}

	return Address{}, fmt.Errorf("listening configuration was unsupported: %q", s)
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

// Listen はaddrでリッスンを開始する。
// UNIXソケットの場合は残っているソケットファイルを削除してから作成する。
// maxConnsが正の場合は同時接続数を制限する。
func Listen(addr Address, maxConns int) (net.Listener, error) {
	if addr.Network == NetworkUnix {
		if err := os.Remove(addr.Address); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale socket %s: %w", addr.Address, err)
		}
	}

	ln, err := net.Listen(addr.Network, addr.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}

// HTTPClient はaddrに接続するHTTPクライアントと、リクエスト先のベースURLを返す。
// UNIXソケットの場合はホスト名に関係なくソケットへ接続する。
func HTTPClient(addr Address, timeout time.Duration) (*http.Client, string) {
	if addr.Network != NetworkUnix {
		host := addr.Address
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		return &http.Client{Timeout: timeout}, "http://" + host
	}

	var dialer net.Dialer
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, NetworkUnix, addr.Address)
		},
	}
	return &http.Client{Timeout: timeout, Transport: transport}, "http://unix"
}
