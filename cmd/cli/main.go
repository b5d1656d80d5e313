// Command pv is a CLI client for the passvault service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/and161185/passvault/internal/client"
	"github.com/and161185/passvault/internal/model"
)

// ---- identity store ----

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "passvault")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "passvault")
}

func identityPath() string { return filepath.Join(cfgDir(), "identity.json") }

func saveIdentity(id model.OwnerIdentity) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(identityPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(id)
}

func loadIdentity() (model.OwnerIdentity, error) {
	var id model.OwnerIdentity
	b, err := os.ReadFile(identityPath())
	if errors.Is(err, os.ErrNotExist) {
		return id, errors.New("no identity (run whoami -name NAME -email EMAIL first)")
	}
	if err != nil {
		return id, err
	}
	if err := json.Unmarshal(b, &id); err != nil {
		return id, fmt.Errorf("identity file: %w", err)
	}
	if id.DisplayName == "" || id.Email == "" {
		return id, errors.New("identity is incomplete (run whoami again)")
	}
	return id, nil
}

// ---- http client ----

func loadTLS(caPath string, insecure bool) (*tls.Config, error) {
	if insecure {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // dev flag
	}
	if caPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func newClient(addr, caPath string, insecure bool) (*client.Client, error) {
	tc, err := loadTLS(caPath, insecure)
	if err != nil {
		return nil, err
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if tc != nil {
		tr.TLSClientConfig = tc
	}
	return client.New(addr, &http.Client{Transport: tr, Timeout: 30 * time.Second})
}

// ---- utils ----

// stdout is swapped in tests.
var stdout io.Writer = os.Stdout

func printJSON(v any) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `pv CLI
Usage:
  pv [-addr URL] [-cacert file | -insecure] <cmd> [args]

Commands:
  version
  whoami     [-name <display name> -email <email>]  (saves identity)
  list                                            (plaintext passwords)
  check      -site <site> -user <username>
  save       -site <site> -user <username> [-p <password> | -p -]
  rm         -id <uuid>
  rm-loose   -id <id>       (legacy filter delete; never matches saved records)
  health
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the configured server.
func main() {
	// global flags
	addr := flag.String("addr", envOr("PV_ADDR", "http://localhost:3000"), "server URL")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	insecure := flag.Bool("insecure", false, "skip cert verify (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	if cmd == "version" {
		fmt.Printf("pv %s (%s)\n", version, buildDate)
		return
	}
	if cmd == "whoami" {
		if err := cmdWhoami(args); err != nil {
			fail(err)
		}
		return
	}

	cli, err := newClient(*addr, *caPath, *insecure)
	if err != nil {
		fail(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "list":
		err = cmdList(ctx, cli, args)
	case "check":
		err = cmdCheck(ctx, cli, args)
	case "save":
		err = cmdSave(ctx, cli, args, os.Stdin)
	case "rm":
		err = cmdRm(ctx, cli, args)
	case "rm-loose":
		err = cmdRmLoose(ctx, cli, args)
	case "health":
		if err = cli.Health(ctx); err == nil {
			fmt.Println("ok")
		}
	default:
		usage()
	}
	if err != nil {
		fail(err)
	}
}

// ---- helpers ----

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fail(err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(os.Stderr, "server error: code=%d msg=%s\n", apiErr.Status, apiErr.Message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
