// Package visitor derives scan metadata (device, OS, browser, referrer, geo)
// from an incoming redirect request.
package visitor

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/mssola/useragent"

	"github.com/qr-tracker/qr-tracker/internal/db/models"
)

// Device types stored in scans.device_type
const (
	DeviceMobile = "mobile"
	DeviceTablet = "tablet"
	DevicePC     = "pc"
	DeviceBot    = "bot"
)

// Info is everything recorded about one visitor
type Info struct {
	IP             string
	UserAgent      string
	DeviceType     string
	OSFamily       string
	BrowserFamily  string
	ReferrerDomain string
	Country        string
	Region         string
	City           string
	Timezone       string
}

// FromRequest builds Info for r. clientIP comes from the router so that its
// trusted-proxy rules apply. Geo headers are read only when trustProxy is set.
func FromRequest(r *http.Request, clientIP string, trustProxy bool) Info {
	ua := r.UserAgent()
	device, os, browser := ParseUserAgent(ua)

	info := Info{
		IP:             clientIP,
		UserAgent:      ua,
		DeviceType:     device,
		OSFamily:       os,
		BrowserFamily:  browser,
		ReferrerDomain: ReferrerDomain(r.Referer()),
	}
	if trustProxy {
		info.Country = normalizeCountry(firstHeader(r.Header, "CF-IPCountry", "X-Geo-Country"))
		info.Region = firstHeader(r.Header, "X-Geo-Region", "CF-Region")
		info.City = firstHeader(r.Header, "X-Geo-City", "CF-IPCity")
		info.Timezone = firstHeader(r.Header, "X-Geo-Timezone", "CF-Timezone")
	}
	return info
}

// ParseUserAgent classifies a User-Agent header. An empty header yields empty
// strings so the scan stores NULLs.
func ParseUserAgent(raw string) (device, os, browser string) {
	if strings.TrimSpace(raw) == "" {
		return "", "", ""
	}

	ua := useragent.New(raw)
	switch {
	case ua.Bot():
		device = DeviceBot
	case isTablet(raw):
		device = DeviceTablet
	case ua.Mobile():
		device = DeviceMobile
	default:
		device = DevicePC
	}

	os = ua.OSInfo().Name
	if os == "" {
		os = ua.OS()
	}
	browser, _ = ua.Browser()
	return device, os, browser
}

func isTablet(raw string) bool {
	switch {
	case strings.Contains(raw, "iPad"), strings.Contains(raw, "Tablet"):
		return true
	case strings.Contains(raw, "Android") && !strings.Contains(raw, "Mobile"):
		return true
	}
	return false
}

// ReferrerDomain returns the host of a Referer header with any "www." prefix
// and port removed. Unparseable values yield "".
func ReferrerDomain(referer string) string {
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// IsLoopback reports whether ip is a loopback address
func IsLoopback(ip string) bool {
	if ip == "localhost" {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

// ApplyTo copies the info onto a scan, leaving empty fields NULL
func (i Info) ApplyTo(scan *models.Scan) {
	scan.IPAddress = optional(i.IP)
	scan.UserAgent = optional(i.UserAgent)
	scan.DeviceType = optional(i.DeviceType)
	scan.OSFamily = optional(i.OSFamily)
	scan.BrowserFamily = optional(i.BrowserFamily)
	scan.ReferrerDomain = optional(i.ReferrerDomain)
	scan.Country = optional(i.Country)
	scan.Region = optional(i.Region)
	scan.City = optional(i.City)
	scan.Timezone = optional(i.Timezone)
}

// normalizeCountry upper-cases an ISO code. Cloudflare's "XX" (unknown) and
// "T1" (Tor) are not countries.
func normalizeCountry(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "XX" || c == "T1" {
		return ""
	}
	return c
}

func firstHeader(h http.Header, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(h.Get(n)); v != "" {
			return v
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
