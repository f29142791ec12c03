package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"crowdchain/cmd/internal/passphrase"
	"crowdchain/config"
	"crowdchain/observability/logging"
	"crowdchain/rpc"
)

const jwtSecretEnv = "CROWD_JWT_SECRET"

type secretSource interface {
	Get() (string, error)
}

var newSecretSource = func() secretSource {
	return passphrase.NewSource(jwtSecretEnv, "JWT signing secret")
}

// runTokenCommand mints a development bearer token for a local node.
func runTokenCommand(args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "account address the token authenticates")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	issuer := fs.String("issuer", "", "issuer claim")
	audience := fs.String("audience", "", "audience claim")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	addr, err := config.ParseAddress(*subject)
	if err != nil {
		fmt.Fprintln(stderr, "Error: --subject:", err)
		return 2
	}
	secret, err := newSecretSource().Get()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	token, err := rpc.SignToken(secret, *issuer, *audience, addr, *ttl)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	logger.Debug("minted token",
		slog.String("subject", addr.Hex()),
		slog.Duration("ttl", *ttl),
		logging.MaskField("token", token))
	fmt.Fprintln(stdout, token)
	return 0
}
