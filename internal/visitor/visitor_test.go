package visitor

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qr-tracker/qr-tracker/internal/db/models"
)

const (
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaIPhone        = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaIPad          = "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaAndroidPhone  = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	uaAndroidTablet = "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaFirefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaGooglebot     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

// ---------------------------------------------------------------------------
// ParseUserAgent
// ---------------------------------------------------------------------------

func TestParseUserAgent_DeviceType(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{"desktop chrome", uaChromeWindows, DevicePC},
		{"iphone", uaIPhone, DeviceMobile},
		{"ipad", uaIPad, DeviceTablet},
		{"android phone", uaAndroidPhone, DeviceMobile},
		{"android tablet", uaAndroidTablet, DeviceTablet},
		{"firefox linux", uaFirefoxLinux, DevicePC},
		{"googlebot", uaGooglebot, DeviceBot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, _, _ := ParseUserAgent(tt.ua)
			assert.Equal(t, tt.want, device)
		})
	}
}

func TestParseUserAgent_Families(t *testing.T) {
	_, os, browser := ParseUserAgent(uaChromeWindows)
	assert.Contains(t, os, "Windows")
	assert.Equal(t, "Chrome", browser)

	_, os, browser = ParseUserAgent(uaFirefoxLinux)
	assert.Contains(t, os, "Linux")
	assert.Equal(t, "Firefox", browser)

	_, os, _ = ParseUserAgent(uaAndroidPhone)
	assert.Contains(t, os, "Android")
}

func TestParseUserAgent_Empty(t *testing.T) {
	device, os, browser := ParseUserAgent("   ")
	assert.Empty(t, device)
	assert.Empty(t, os)
	assert.Empty(t, browser)
}

// ---------------------------------------------------------------------------
// ReferrerDomain
// ---------------------------------------------------------------------------

func TestReferrerDomain(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://www.google.com/search?q=qr", "google.com"},
		{"https://news.ycombinator.com/item?id=1", "news.ycombinator.com"},
		{"http://WWW.Example.COM:8080/path", "example.com"},
		{"", ""},
		{"not a url", ""},
		{"/relative/only", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReferrerDomain(tt.in), "ReferrerDomain(%q)", tt.in)
	}
}

// ---------------------------------------------------------------------------
// IsLoopback
// ---------------------------------------------------------------------------

func TestIsLoopback(t *testing.T) {
	assert.True(t, IsLoopback("127.0.0.1"))
	assert.True(t, IsLoopback("127.0.0.53"))
	assert.True(t, IsLoopback("::1"))
	assert.True(t, IsLoopback("localhost"))
	assert.False(t, IsLoopback("203.0.113.7"))
	assert.False(t, IsLoopback("2001:db8::1"))
	assert.False(t, IsLoopback(""))
	assert.False(t, IsLoopback("garbage"))
}

// ---------------------------------------------------------------------------
// FromRequest
// ---------------------------------------------------------------------------

func TestFromRequest_GeoHeadersTrusted(t *testing.T) {
	r := httptest.NewRequest("GET", "/r/abc", nil)
	r.Header.Set("User-Agent", uaIPhone)
	r.Header.Set("Referer", "https://www.instagram.com/p/xyz")
	r.Header.Set("CF-IPCountry", "de")
	r.Header.Set("X-Geo-Region", "Bavaria")
	r.Header.Set("X-Geo-City", "Munich")
	r.Header.Set("X-Geo-Timezone", "Europe/Berlin")

	info := FromRequest(r, "198.51.100.4", true)

	assert.Equal(t, "198.51.100.4", info.IP)
	assert.Equal(t, DeviceMobile, info.DeviceType)
	assert.Equal(t, "instagram.com", info.ReferrerDomain)
	assert.Equal(t, "DE", info.Country)
	assert.Equal(t, "Bavaria", info.Region)
	assert.Equal(t, "Munich", info.City)
	assert.Equal(t, "Europe/Berlin", info.Timezone)
}

func TestFromRequest_GeoHeadersIgnoredWhenUntrusted(t *testing.T) {
	r := httptest.NewRequest("GET", "/r/abc", nil)
	r.Header.Set("CF-IPCountry", "US")
	r.Header.Set("X-Geo-City", "Spoofed")

	info := FromRequest(r, "198.51.100.4", false)

	assert.Empty(t, info.Country)
	assert.Empty(t, info.City)
}

func TestFromRequest_UnknownCountryCodes(t *testing.T) {
	for _, code := range []string{"XX", "T1", "xx"} {
		r := httptest.NewRequest("GET", "/r/abc", nil)
		r.Header.Set("CF-IPCountry", code)
		assert.Empty(t, FromRequest(r, "198.51.100.4", true).Country, "country for %s", code)
	}

	r := httptest.NewRequest("GET", "/r/abc", nil)
	r.Header.Set("X-Geo-Country", "fr")
	assert.Equal(t, "FR", FromRequest(r, "198.51.100.4", true).Country, "X-Geo-Country fallback")
}

// ---------------------------------------------------------------------------
// ApplyTo
// ---------------------------------------------------------------------------

func TestApplyTo_EmptyFieldsStayNull(t *testing.T) {
	info := Info{IP: "198.51.100.4", DeviceType: DevicePC, Country: "GB"}
	var scan models.Scan
	info.ApplyTo(&scan)

	require.NotNil(t, scan.IPAddress)
	assert.Equal(t, "198.51.100.4", *scan.IPAddress)
	require.NotNil(t, scan.DeviceType)
	assert.Equal(t, DevicePC, *scan.DeviceType)
	require.NotNil(t, scan.Country)
	assert.Equal(t, "GB", *scan.Country)

	assert.Nil(t, scan.UserAgent)
	assert.Nil(t, scan.City)
	assert.Nil(t, scan.ReferrerDomain)
	assert.Nil(t, scan.Timezone)
}
