// Scrutiny - Blockchain Security Analysis Service
//
// Usage:
//
//	scrutiny serve --config scrutiny.yaml
//	scrutiny analyze 0xContract --bytecode 0x60806040...
//	scrutiny process --file txs.json
//	scrutiny process --hash 0xTransaction --rpc-url https://node.example
//	scrutiny scanners
package main

import (
	"fmt"
	"os"
)

const (
	appName    = "scrutiny"
	appVersion = "1.0.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
