// make-token mints a bearer token for the linking API. The engine has no user
// store of its own; operators and CI jobs authenticate with tokens minted
// against the shared API_SECRET.
//
// Usage:
//
//	API_SECRET=... go run ./cmd/make-token -user-id 1 -role admin
package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/meditech/medlink_backend/utils"
)

func main() {
	userId := flag.Int("user-id", 0, "Required: user id to embed in the token")
	role := flag.String("role", "operator", "Role claim: operator or admin")
	flag.Parse()

	if *userId <= 0 {
		fmt.Fprintln(os.Stderr, "-user-id is required")
		os.Exit(1)
	}
	if *role != "operator" && *role != "admin" {
		fmt.Fprintf(os.Stderr, "unknown role %q (want operator or admin)\n", *role)
		os.Exit(1)
	}

	token, err := utils.JwtGenerate(*userId, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
