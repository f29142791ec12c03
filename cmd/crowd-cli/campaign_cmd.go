package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"
)

func (c *cli) runCampaignCommand(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(c.stderr, "Usage: crowd-cli campaign <create|get|list|count> [args]")
		return 2
	}
	switch args[0] {
	case "create":
		return c.runCampaignCreate(args[1:], time.Now)
	case "get":
		if len(args) != 2 {
			fmt.Fprintln(c.stderr, "Usage: crowd-cli campaign get <id>")
			return 2
		}
		id, err := parseID(args[1])
		if err != nil {
			fmt.Fprintln(c.stderr, "Error:", err)
			return 2
		}
		return c.call("crowdfund_getCampaign", map[string]interface{}{"id": id})
	case "list":
		fs := flag.NewFlagSet("campaign list", flag.ContinueOnError)
		fs.SetOutput(c.stderr)
		offset := fs.Uint64("offset", 0, "first campaign id")
		limit := fs.Uint64("limit", 20, "page size")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		return c.call("crowdfund_listCampaigns", map[string]interface{}{"offset": *offset, "limit": *limit})
	case "count":
		return c.call("crowdfund_campaignCount", nil)
	default:
		fmt.Fprintf(c.stderr, "Error: unknown campaign subcommand %q\n", args[0])
		return 2
	}
}

// campaignCreateParams builds the crowdfund_createCampaign payload from
// flags. Exactly one of --deadline or --duration must be given.
func campaignCreateParams(args []string, now func() time.Time) (map[string]interface{}, error) {
	fs := flag.NewFlagSet("campaign create", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	title := fs.String("title", "", "campaign title")
	description := fs.String("description", "", "campaign description")
	goal := fs.String("goal", "", "funding goal in settlement units")
	deadline := fs.Int64("deadline", 0, "deadline as unix seconds")
	duration := fs.Duration("duration", 0, "deadline relative to now")
	fixed := fs.Bool("fixed", false, "require every donation to equal --required")
	required := fs.String("required", "", "required donation amount for fixed campaigns")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if strings.TrimSpace(*title) == "" {
		return nil, fmt.Errorf("--title is required")
	}
	if strings.TrimSpace(*goal) == "" {
		return nil, fmt.Errorf("--goal is required")
	}
	switch {
	case *deadline != 0 && *duration != 0:
		return nil, fmt.Errorf("use either --deadline or --duration, not both")
	case *duration > 0:
		*deadline = now().Add(*duration).Unix()
	case *deadline == 0:
		return nil, fmt.Errorf("--deadline or --duration is required")
	}
	if *fixed && strings.TrimSpace(*required) == "" {
		return nil, fmt.Errorf("--required is needed for fixed campaigns")
	}
	params := map[string]interface{}{
		"title":               *title,
		"description":         *description,
		"goal":                strings.TrimSpace(*goal),
		"deadline":            *deadline,
		"fixedDonationAmount": *fixed,
	}
	if *fixed {
		params["requiredDonationAmount"] = strings.TrimSpace(*required)
	}
	return params, nil
}

func (c *cli) runCampaignCreate(args []string, now func() time.Time) int {
	params, err := campaignCreateParams(args, now)
	if err != nil {
		fmt.Fprintln(c.stderr, "Error:", err)
		return 2
	}
	params["chainId"] = c.network.ChainID
	return c.call("crowdfund_createCampaign", params)
}
