// Package links discovers same-site subpages from an HTML document.
package links

import (
	"bytes"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
)

// Finder resolves anchors against the page URL and keeps those on the same
// registered domain (eTLD+1) as the page.
type Finder struct{}

// NewFinder returns a Finder.
func NewFinder() *Finder {
	return &Finder{}
}

// SameSiteLinks returns up to limit distinct absolute http(s) links in
// document order. The page itself and fragment-only variants of it are
// excluded. A negative limit means no cap.
func (f *Finder) SameSiteLinks(pageURL string, body []byte, limit int) ([]string, error) {
	if limit == 0 {
		return nil, nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	site := RegisteredDomain(base.Hostname())
	if site == "" {
		return nil, fmt.Errorf("page url %q has no host", pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	self := withoutFragment(base)
	seen := map[string]struct{}{self: {}}
	var out []string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		link, ok := resolve(base, href)
		if !ok {
			return true
		}
		u, err := url.Parse(link)
		if err != nil || RegisteredDomain(u.Hostname()) != site {
			return true
		}
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}
		out = append(out, link)
		return limit < 0 || len(out) < limit
	})
	return out, nil
}

// RegisteredDomain returns the lower-cased eTLD+1 of host. IP addresses and
// single-label hosts such as localhost are returned unchanged.
func RegisteredDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// host is itself a public suffix.
		return host
	}
	return domain
}

func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return withoutFragment(abs), true
}

func withoutFragment(u *url.URL) string {
	cp := *u
	cp.Fragment = ""
	cp.RawFragment = ""
	return cp.String()
}
