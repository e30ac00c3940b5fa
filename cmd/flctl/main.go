package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/ocx/flnode/internal/signature"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	adminAddr := os.Getenv("FLCTL_ADMIN_ADDR")
	if adminAddr == "" {
		adminAddr = "http://127.0.0.1:8090"
	}

	switch os.Args[1] {
	case "status":
		cmdStatus(adminAddr)
	case "keygen":
		cmdKeygen(os.Args[2:])
	case "version":
		fmt.Printf("flctl v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`flctl v` + version + ` - DeFL node operator CLI

Usage: flctl <command> [flags]

Commands:
  status              Probe the node's admin /healthz and print the result as JSON
  keygen --out <path> Generate an Ed25519 key_file for a new node
  version             Print version
  help                Show this help

Environment:
  FLCTL_ADMIN_ADDR    Node admin HTTP base URL (default: http://127.0.0.1:8090)

Examples:
  flctl status
  flctl keygen --out node.key`)
}

// ----------------------------------------------------------------
// status command
// ----------------------------------------------------------------

func cmdStatus(adminAddr string) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(adminAddr + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading response failed: %v\n", err)
		os.Exit(1)
	}

	var pretty map[string]interface{}
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// ----------------------------------------------------------------
// keygen command
// ----------------------------------------------------------------

func cmdKeygen(args []string) {
	var out string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--out", "-o":
			i++
			if i < len(args) {
				out = args[i]
			}
		}
	}
	if out == "" {
		fmt.Fprintln(os.Stderr, "Usage: flctl keygen --out <path>")
		os.Exit(1)
	}

	p, err := signature.GenerateKeyFile(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\npublic key: %s\n", out, hex.EncodeToString(p.PublicKeyBytes()))
}
