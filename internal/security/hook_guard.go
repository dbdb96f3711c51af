// Package security は外部送信URLの検証とユーザー入力HTMLのサニタイズを提供する。
package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrUnsafeURL はURLが外部送信先として許可されないことを表す。
var ErrUnsafeURL = errors.New("unsafe url")

// URLValidator は保存前にURLを静的に検証するインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// HookGuard はデプロイフック等のユーザー指定URLへの送信をSSRFから保護する。
type HookGuard struct {
	schemes []string
	ports   []int
}

// NewHookGuard はHookGuardを生成する。許可するスキームはhttpsとhttp。
func NewHookGuard() *HookGuard {
	return &HookGuard{
		schemes: []string{"https", "http"},
		ports:   []int{443, 80},
	}
}

// privateRanges は送信を禁止するネットワーク範囲。
var privateRanges = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// ValidateURL はURLを保存する前にDNS解決を伴わない静的検証を行う。
// DNS解決後のアドレスはNewClientが返すクライアントのダイヤラーで検証される。
func (g *HookGuard) ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("%w: empty", ErrUnsafeURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	if !g.allowsScheme(u.Scheme) {
		return fmt.Errorf("%w: scheme %q", ErrUnsafeURL, u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials in url", ErrUnsafeURL)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrUnsafeURL)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("%w: host %q", ErrUnsafeURL, host)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, n := range privateRanges {
			if n.Contains(ip) {
				return fmt.Errorf("%w: address %s", ErrUnsafeURL, ip)
			}
		}
	}
	return nil
}

func (g *HookGuard) allowsScheme(scheme string) bool {
	for _, s := range g.schemes {
		if strings.EqualFold(s, scheme) {
			return true
		}
	}
	return false
}

// NewClient はプライベートアドレスへの接続をダイヤラーレベルで拒否するHTTPクライアントを生成する。
// プロセス起動時に一度だけ生成し共有する。
func (g *HookGuard) NewClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.schemes...).
		SetAllowedPorts(g.ports...).
		Build()
	return safeurl.Client(config).Client
}
