// Package main prints the bcrypt hash of a password so a user row can be seeded
// or repaired directly in the database. The password is taken from the first
// argument, or read from stdin when no argument is given.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/qr-tracker/qr-tracker/internal/auth"
)

func main() {
	var password string
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("Failed to read password: %v", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(hash)
}
