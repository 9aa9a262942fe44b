package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/flowgate/internal/config"
	"github.com/mattjoyce/flowgate/internal/flowcrypto"
	"github.com/mattjoyce/flowgate/internal/storage"
	"github.com/mattjoyce/flowgate/internal/token"
)

// --- NOUN DISPATCHERS ---

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runKeysNoun(args []string) int {
	if len(args) < 1 {
		printKeysNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printKeysNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "generate":
		if hasHelpFlag(args[1:]) {
			printKeysGenerateHelp()
			return 0
		}
		return runKeysGenerate(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown keys action: %s\n", args[0])
		return 1
	}
}

func runTokenNoun(args []string) int {
	if len(args) < 1 {
		printTokenNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printTokenNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "issue":
		if hasHelpFlag(args[1:]) {
			printTokenIssueHelp()
			return 0
		}
		return runTokenIssue(args[1:])
	case "verify":
		if hasHelpFlag(args[1:]) {
			printTokenVerifyHelp()
			return 0
		}
		return runTokenVerify(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown token action: %s\n", args[0])
		return 1
	}
}

// --- ACTIONS ---

type checkResult struct {
	Valid      bool     `json:"valid"`
	ConfigPath string   `json:"config_path"`
	Locked     bool     `json:"locked"`
	Errors     []string `json:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	configPath = resolveConfigFlag(configPath)

	result := checkResult{ConfigPath: configPath}
	cfg, err := config.Load(configPath)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.Valid = true
		result.ConfigPath = cfg.SourcePath
		result.Warnings = configWarnings(cfg)
		if _, err := loadFlowKey(cfg.Flow); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("flow private key: %v", err))
		}
		if err := storage.CheckPath(cfg.State.Path); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, err.Error())
		}
		if _, err := os.Stat(filepath.Join(filepath.Dir(cfg.SourcePath), config.ChecksumsFile)); err == nil {
			result.Locked = true
		}
	}

	if jsonOut {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	} else {
		printCheckResult(result)
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

// configWarnings lists settings that are valid but unsafe or incomplete.
func configWarnings(cfg *config.Config) []string {
	var warnings []string
	if cfg.Signature.AppSecret == "" {
		warnings = append(warnings, "signature.app_secret is empty: requests are accepted unsigned")
	}
	if !cfg.Token.VerifiesOnLookup() {
		warnings = append(warnings, "token.verify_on_lookup is false: flow tokens are used as lookup keys without verification")
	}
	if cfg.Webhook.VerifyToken == "" {
		warnings = append(warnings, "webhook.verify_token is empty: subscription verification always fails")
	}
	if cfg.Messaging.PhoneNumberID == "" || cfg.Messaging.AccessToken == "" {
		warnings = append(warnings, "messaging credentials are not set: inbound messages will not be answered")
	}
	return warnings
}

func printCheckResult(r checkResult) {
	fmt.Printf("Config: %s\n", r.ConfigPath)
	for _, e := range r.Errors {
		fmt.Printf("  ERROR %s\n", e)
	}
	for _, w := range r.Warnings {
		fmt.Printf("  WARN  %s\n", w)
	}
	if r.Locked {
		fmt.Println("Integrity: verified against .checksums")
	} else {
		fmt.Println("Integrity: not locked (run 'flowgate config lock')")
	}
	if r.Valid {
		fmt.Println("Status: Configuration check PASSED.")
	} else {
		fmt.Println("Status: Configuration check FAILED.")
	}
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort
	configPath = resolveConfigFlag(configPath)

	report, err := config.Lock(configPath, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	if isVerbose {
		fmt.Printf("  HASH %s: %s\n", filepath.Base(report.ConfigPath), report.Hash)
		if dryRun {
			fmt.Printf("  DRY-RUN .checksums: %s (not written)\n", report.ChecksumPath)
		} else {
			fmt.Printf("  WROTE .checksums: %s\n", report.ChecksumPath)
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed for %s (no files written)\n", report.ConfigPath)
	} else {
		fmt.Printf("Successfully locked configuration: %s\n", report.ConfigPath)
	}
	return 0
}

func runKeysGenerate(args []string) int {
	var bits int
	var passphrase, out string

	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.IntVar(&bits, "bits", flowcrypto.DefaultKeyBits, "RSA modulus size")
	fs.StringVar(&passphrase, "passphrase", "", "Encrypt the private key with this passphrase")
	fs.StringVar(&out, "out", "", "Write <out>.pem and <out>.pub.pem instead of stdout")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	privatePEM, publicPEM, err := flowcrypto.GenerateKey(bits, passphrase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Key generation failed: %v\n", err)
		return 1
	}

	if out == "" {
		fmt.Print(string(privatePEM))
		fmt.Print(string(publicPEM))
		return 0
	}

	privatePath, publicPath := out+".pem", out+".pub.pem"
	if err := os.WriteFile(privatePath, privatePEM, 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write private key: %v\n", err)
		return 1
	}
	if err := os.WriteFile(publicPath, publicPEM, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write public key: %v\n", err)
		return 1
	}
	fmt.Printf("Private key: %s\n", privatePath)
	fmt.Printf("Public key:  %s (upload this to the platform)\n", publicPath)
	return 0
}

func runTokenIssue(args []string) int {
	var configPath, phone, messageID string

	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.StringVar(&phone, "phone", "", "Subject phone number")
	fs.StringVar(&messageID, "message-id", "", "Inbound message id (random when empty)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if phone == "" {
		fmt.Fprintln(os.Stderr, "Usage: flowgate token issue --phone NUMBER [--message-id ID] [--config PATH]")
		return 1
	}
	if messageID == "" {
		messageID = uuid.NewString()
	}

	issuer, err := issuerFromConfig(resolveConfigFlag(configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	tok, err := issuer.Issue(phone, messageID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Token issue failed: %v\n", err)
		return 1
	}
	fmt.Println(tok)
	return 0
}

type tokenView struct {
	Subject   string `json:"subject"`
	MessageID string `json:"message_id"`
	Timestamp int64  `json:"timestamp"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at"`
}

func runTokenVerify(args []string) int {
	var configPath string

	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: flowgate token verify [--config PATH] <token>")
		return 1
	}

	issuer, err := issuerFromConfig(resolveConfigFlag(configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	claims, err := issuer.Verify(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Token rejected: %v\n", err)
		return 1
	}

	data, err := json.MarshalIndent(tokenView{
		Subject:   claims.Subject,
		MessageID: claims.MessageID,
		Timestamp: claims.Timestamp,
		IssuedAt:  claims.IssuedAt.UTC().Format(time.RFC3339),
		ExpiresAt: claims.ExpiresAt.UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

func issuerFromConfig(configPath string) (*token.Issuer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load error: %w", err)
	}
	issuer, err := token.NewIssuer(cfg.Token.Secret, cfg.Token.TTL)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}
	return issuer, nil
}

// --- HELP ---

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: flowgate config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock")
}

func printKeysNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: flowgate keys <action> [flags]")
	fmt.Fprintln(w, "Actions: generate")
}

func printTokenNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: flowgate token <action> [flags]")
	fmt.Fprintln(w, "Actions: issue, verify")
}

func printConfigLockHelp() {
	fmt.Println("Usage: flowgate config lock [--config PATH] [--dry-run] [-v]")
	fmt.Println("Hash the configuration file and write .checksums next to it.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: flowgate config check [--config PATH] [--json] [--strict]")
	fmt.Println("Validate configuration, key material, and integrity.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  Valid")
	fmt.Println("  1  Invalid")
	fmt.Println("  2  Valid with warnings (--strict)")
}

func printKeysGenerateHelp() {
	fmt.Println("Usage: flowgate keys generate [--bits N] [--passphrase P] [--out PREFIX]")
	fmt.Println("Create an RSA key pair. The public key is uploaded to the platform.")
}

func printTokenIssueHelp() {
	fmt.Println("Usage: flowgate token issue --phone NUMBER [--message-id ID] [--config PATH]")
	fmt.Println("Issue a conversation token signed with token.secret.")
}

func printTokenVerifyHelp() {
	fmt.Println("Usage: flowgate token verify [--config PATH] <token>")
	fmt.Println("Verify a conversation token and print its claims.")
}
