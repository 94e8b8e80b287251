// Command gen-hash prints a bcrypt hash of its argument, for use as
// KERNEL_PASSWORD_HASH.
//
//	go run ./cmd/gen-hash 'my-password'
package main

import (
	"fmt"
	"os"

	"github.com/lunalab/luna-kernel/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: gen-hash <password>")
		os.Exit(2)
	}
	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
