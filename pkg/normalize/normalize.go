// Package normalize turns published article links into canonical URLs and
// derives the content address used as the deduplication key.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
)

var (
	ErrEmptyURL          = errors.New("url is empty")
	ErrNotAbsolute       = errors.New("url is not absolute")
	ErrUnsupportedScheme = errors.New("url scheme is not http or https")
)

// hostPrefixes are stripped from the start of the host, at most one of them.
var hostPrefixes = []string{"www.", "m.", "mobile.", "amp."}

// trackingParams is the denylist of query parameters that identify a click
// or a campaign rather than the resource. Any utm_* parameter is dropped too.
var trackingParams = map[string]bool{
	"fbclid":      true,
	"gclid":       true,
	"gclsrc":      true,
	"dclid":       true,
	"msclkid":     true,
	"yclid":       true,
	"twclid":      true,
	"ttclid":      true,
	"li_fat_id":   true,
	"igshid":      true,
	"mc_cid":      true,
	"mc_eid":      true,
	"_ga":         true,
	"_gl":         true,
	"ref_src":     true,
	"ref_url":     true,
	"mkt_tok":     true,
	"oly_enc_id":  true,
	"oly_anon_id": true,
}

// Canonicalize returns the canonical form of rawURL:
//   - scheme and host lower-cased, default port removed
//   - one leading www./m./mobile./amp. host label removed
//   - tracking parameters removed, the rest sorted by key then value
//   - fragment removed
//   - a single trailing slash removed from the path
func Canonicalize(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrEmptyURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" || u.Host == "" {
		return "", ErrNotAbsolute
	}
	if scheme != "http" && scheme != "https" {
		return "", ErrUnsupportedScheme
	}

	host := canonicalHost(u.Hostname())
	if host == "" {
		return "", ErrNotAbsolute
	}
	if port := u.Port(); port != "" && !isDefaultPort(scheme, port) {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		// IPv6 literal without port.
		host = "[" + host + "]"
	}

	out := url.URL{
		Scheme:   scheme,
		User:     u.User,
		Host:     host,
		Path:     trimOneSlash(u.Path),
		RawQuery: canonicalQuery(u.RawQuery),
	}
	if u.RawPath != "" {
		out.RawPath = trimOneSlash(u.RawPath)
	}

	return out.String(), nil
}

// Hash returns the content address of a canonical URL: the hex SHA-256 digest.
func Hash(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

// Address canonicalizes rawURL and hashes the result.
func Address(rawURL string) (canonical, address string, err error) {
	canonical, err = Canonicalize(rawURL)
	if err != nil {
		return "", "", err
	}
	return canonical, Hash(canonical), nil
}

func canonicalHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, prefix := range hostPrefixes {
		rest, ok := strings.CutPrefix(host, prefix)
		if ok && strings.Contains(rest, ".") {
			return rest
		}
	}
	return host
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

func trimOneSlash(p string) string {
	if p == "/" {
		return ""
	}
	return strings.TrimSuffix(p, "/")
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	return strings.HasPrefix(key, "utm_") || trackingParams[key]
}

// canonicalQuery drops tracking parameters and sorts the remainder so that
// parameter order never changes the content address.
func canonicalQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	// Malformed pairs are skipped; whatever parsed is kept.
	values, _ := url.ParseQuery(rawQuery)
	for key := range values {
		if isTrackingParam(key) {
			delete(values, key)
		}
	}
	if len(values) == 0 {
		return ""
	}
	for _, vs := range values {
		sort.Strings(vs)
	}
	return values.Encode()
}
