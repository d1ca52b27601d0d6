// Package main is a post-deployment smoke test for a running QR tracker. It
// checks /health, logs in, creates a throwaway QR code, requests its short link
// once, and deletes the code again along with the scan it produced.
//
// Environment: QRT_SMOKE_URL (default http://localhost:8080), QRT_SMOKE_EMAIL,
// QRT_SMOKE_PASSWORD.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

type client struct {
	base  string
	token string
	http  *http.Client
}

func main() {
	base := os.Getenv("QRT_SMOKE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	c := &client{
		base: base,
		http: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	status, _ := c.do(http.MethodGet, "/health", nil, nil)
	fmt.Printf("GET /health: %d\n", status)
	if status != http.StatusOK {
		os.Exit(1)
	}

	var login struct {
		AccessToken string `json:"access_token"`
	}
	creds := map[string]string{"email": os.Getenv("QRT_SMOKE_EMAIL"), "password": os.Getenv("QRT_SMOKE_PASSWORD")}
	if status, body := c.do(http.MethodPost, "/api/auth/login", creds, &login); status != http.StatusOK {
		log.Fatalf("login failed: %d %s", status, body)
	}
	c.token = login.AccessToken

	var qr struct {
		ID        int64  `json:"id"`
		ShortCode string `json:"short_code"`
		ShortURL  string `json:"short_url"`
	}
	create := map[string]string{"name": "smoke test", "target_url": "https://example.com/"}
	if status, body := c.do(http.MethodPost, "/api/qrcodes", create, &qr); status != http.StatusCreated {
		log.Fatalf("create failed: %d %s", status, body)
	}
	fmt.Printf("Created %s -> %s\n", qr.ShortCode, qr.ShortURL)

	status, _ = c.do(http.MethodGet, "/r/"+qr.ShortCode+"?via=direct", nil, nil)
	fmt.Printf("GET /r/%s: %d\n", qr.ShortCode, status)
	redirectOK := status == http.StatusFound

	if status, body := c.do(http.MethodDelete, fmt.Sprintf("/api/qrcodes/%d", qr.ID), nil, nil); status != http.StatusOK {
		log.Printf("cleanup failed: %d %s", status, body)
	}
	if !redirectOK {
		os.Exit(1)
	}
	fmt.Println("OK")
}

// do sends a JSON request and decodes a JSON response into out when non-nil
func (c *client) do(method, path string, in, out interface{}) (int, string) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			log.Fatalf("encode request: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("read body: %v", err)
	}
	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(data, out); err != nil {
			log.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, string(data)
}
