//go:build ignore

// generate-key prints a random QRT_JWT_SECRET suitable for production.
//
//	go run scripts/generate-key.go >> .env
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
)

func main() {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("QRT_JWT_SECRET=%s\n", hex.EncodeToString(b))
}
