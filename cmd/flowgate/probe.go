package main

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattjoyce/flowgate/internal/config"
	"github.com/mattjoyce/flowgate/internal/flowcrypto"
	"github.com/mattjoyce/flowgate/internal/webhook"
)

func runFlowNoun(args []string) int {
	if len(args) < 1 {
		printFlowNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printFlowNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "ping":
		if hasHelpFlag(args[1:]) {
			printFlowPingHelp()
			return 0
		}
		return runFlowPing(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown flow action: %s\n", args[0])
		return 1
	}
}

// runFlowPing encrypts a ping for the configured key, posts it the way the
// platform does, and decrypts the reply.
func runFlowPing(args []string) int {
	var configPath, url string
	var timeout time.Duration

	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.StringVar(&url, "url", "", "Flow endpoint URL (default: listen address and base path)")
	fs.DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(resolveConfigFlag(configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}
	key, err := loadFlowKey(cfg.Flow)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flow private key: %v\n", err)
		return 1
	}
	if url == "" {
		url = localEndpoint(cfg.Server)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	reply, err := pingEndpoint(ctx, http.DefaultClient, url, &key.PublicKey, cfg.Signature)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ping failed: %v\n", err)
		return 1
	}
	fmt.Println(string(reply))
	return 0
}

// pingEndpoint posts a sealed ping to url and returns the decrypted reply.
func pingEndpoint(ctx context.Context, client *http.Client, url string, pub *rsa.PublicKey, sig config.SignatureConfig) ([]byte, error) {
	sealed, err := flowcrypto.SealRequest(pub, map[string]string{"version": "3.0", "action": "ping"})
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(sealed.Envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sig.AppSecret != "" {
		req.Header.Set(sig.Header, webhook.Sign(body, []byte(sig.AppSecret)))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s answered %d", url, resp.StatusCode)
	}
	return sealed.OpenResponse(string(respBody))
}

// localEndpoint derives the flow URL of a gateway listening on this host.
func localEndpoint(srv config.ServerConfig) string {
	host := srv.Listen
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	base := srv.BasePath
	if base == "" || base == "/" {
		base = ""
	}
	return "http://" + host + base + "/"
}

func printFlowNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: flowgate flow <action> [flags]")
	fmt.Fprintln(w, "Actions: ping")
}

func printFlowPingHelp() {
	fmt.Println("Usage: flowgate flow ping [--config PATH] [--url URL] [--timeout 10s]")
	fmt.Println("Encrypt a ping with the configured key, post it, and print the decrypted reply.")
}
