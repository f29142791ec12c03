package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cli carries the resolved network and transport for one invocation.
type cli struct {
	client  *rpcClient
	network Network
	stdout  io.Writer
	stderr  io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("crowd-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	rpcURL := fs.String("rpc", os.Getenv("CROWD_RPC_URL"), "JSON-RPC endpoint (overrides the network's rpc_url)")
	networkKey := fs.String("network", os.Getenv("CROWD_NETWORK"), "network name from the networks file")
	networksPath := fs.String("networks", envOr("CROWD_NETWORKS", "networks.yaml"), "path to the networks file")
	token := fs.String("token", os.Getenv("CROWD_RPC_TOKEN"), "bearer token for mutating calls")
	verbose := fs.Bool("verbose", false, "log requests to stderr with credentials masked")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 2
	}
	logger := newLogger(stderr, *verbose)
	if rest[0] == "token" {
		return runTokenCommand(rest[1:], stdout, stderr, logger)
	}

	reg, err := loadNetworks(*networksPath)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	network, err := reg.resolve(*networkKey)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	endpoint := strings.TrimSpace(*rpcURL)
	if endpoint == "" {
		endpoint = network.RPCURL
	}
	c := &cli{client: newRPCClient(endpoint, *token, logger), network: network, stdout: stdout, stderr: stderr}

	switch rest[0] {
	case "campaign":
		return c.runCampaignCommand(rest[1:])
	case "donate":
		return c.runDonate(rest[1:])
	case "refund":
		return c.runIDMutation("crowdfund_claimRefund", "refund", rest[1:])
	case "withdraw":
		return c.runIDMutation("crowdfund_withdraw", "withdraw", rest[1:])
	case "donation":
		return c.runDonation(rest[1:])
	case "balance":
		return c.runBalance(rest[1:])
	case "events":
		return c.runEvents(rest[1:])
	case "deployment":
		return c.call("crowdfund_deployment", map[string]interface{}{"chainId": network.ChainID})
	case "networks":
		for _, key := range reg.keys() {
			n := reg.networks[key]
			fmt.Fprintf(stdout, "%-8s chain=%-7d rpc=%s\n", key, n.ChainID, n.RPCURL)
		}
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n", rest[0])
		printUsage(stderr)
		return 2
	}
}

// call performs method and prints the result as indented JSON.
func (c *cli) call(method string, params interface{}) int {
	var result json.RawMessage
	if err := c.client.call(method, params, &result); err != nil {
		fmt.Fprintln(c.stderr, "Error:", err)
		return 1
	}
	printJSON(c.stdout, result)
	return 0
}

func (c *cli) runIDMutation(method, name string, args []string) int {
	if len(args) != 1 {
		fmt.Fprintf(c.stderr, "Usage: crowd-cli %s <campaign-id>\n", name)
		return 2
	}
	id, err := parseID(args[0])
	if err != nil {
		fmt.Fprintln(c.stderr, "Error:", err)
		return 2
	}
	return c.call(method, map[string]interface{}{"id": id, "chainId": c.network.ChainID})
}

func (c *cli) runDonate(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(c.stderr, "Usage: crowd-cli donate <campaign-id> <amount>")
		return 2
	}
	id, err := parseID(args[0])
	if err != nil {
		fmt.Fprintln(c.stderr, "Error:", err)
		return 2
	}
	return c.call("crowdfund_donate", map[string]interface{}{
		"id":      id,
		"amount":  strings.TrimSpace(args[1]),
		"chainId": c.network.ChainID,
	})
}

func (c *cli) runDonation(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(c.stderr, "Usage: crowd-cli donation <campaign-id> <address>")
		return 2
	}
	id, err := parseID(args[0])
	if err != nil {
		fmt.Fprintln(c.stderr, "Error:", err)
		return 2
	}
	return c.call("crowdfund_getDonation", map[string]interface{}{"id": id, "address": strings.TrimSpace(args[1])})
}

func (c *cli) runBalance(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(c.stderr, "Usage: crowd-cli balance <address>")
		return 2
	}
	return c.call("bank_getBalance", map[string]interface{}{"address": strings.TrimSpace(args[0])})
}

func (c *cli) runEvents(args []string) int {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	campaign := fs.String("campaign", "", "campaign id")
	address := fs.String("address", "", "actor address")
	limit := fs.Int("limit", 0, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	params := map[string]interface{}{}
	if *campaign != "" {
		id, err := parseID(*campaign)
		if err != nil {
			fmt.Fprintln(c.stderr, "Error:", err)
			return 2
		}
		params["id"] = id
	}
	if *address != "" {
		params["address"] = *address
	}
	if len(params) != 1 {
		fmt.Fprintln(c.stderr, "Error: specify exactly one of --campaign or --address")
		return 2
	}
	if *limit > 0 {
		params["limit"] = *limit
	}
	return c.call("crowdfund_listEvents", params)
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid campaign id %q", raw)
	}
	return id, nil
}

func printJSON(w io.Writer, raw json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Fprintln(w, string(raw))
		return
	}
	fmt.Fprintln(w, buf.String())
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// newLogger writes debug records to w when verbose is set and discards them
// otherwise.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: crowd-cli [--rpc URL] [--network NAME] [--networks FILE] [--token JWT] [--verbose] <command> [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  campaign create --title T --goal N (--deadline UNIX | --duration D) [--description S] [--fixed --required N]")
	fmt.Fprintln(w, "  campaign get <id>")
	fmt.Fprintln(w, "  campaign list [--offset N] [--limit N]")
	fmt.Fprintln(w, "  campaign count")
	fmt.Fprintln(w, "  donate <id> <amount>")
	fmt.Fprintln(w, "  refund <id>")
	fmt.Fprintln(w, "  withdraw <id>")
	fmt.Fprintln(w, "  donation <id> <address>")
	fmt.Fprintln(w, "  balance <address>")
	fmt.Fprintln(w, "  events (--campaign <id> | --address <addr>) [--limit N]")
	fmt.Fprintln(w, "  deployment")
	fmt.Fprintln(w, "  networks")
	fmt.Fprintln(w, "  token --subject <address> [--ttl 1h] [--issuer S] [--audience S]")
}
