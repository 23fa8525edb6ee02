package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	aadtoken "github.com/entratools/aad-token-validator"
)

var errNoToken = errors.New("no token provided")

func newValidateCommand(a *app) *cobra.Command {
	var (
		asJSON     bool
		callGraph bool
		endpoint   string
	)

	cmd := &cobra.Command{
		Use:   "validate [token]",
		Short: "Decode a token, verify its signature and check its claims",
		Long: `Decode a token, verify its signature and check its claims.

The token is read from the first argument, or from standard input when no
argument is given. The exit code is 0 for a valid token, 2 for an invalid one
and 3 when the signature could not be checked because signing keys were
unreachable.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.readToken(args)
			if err != nil {
				return err
			}

			engine, release, err := a.newEngine()
			if err != nil {
				return err
			}
			defer release()

			report, err := engine.Validate(cmd.Context(), raw, aadtoken.ValidateOptions{
				TenantOverride: tenantOverride(a.cfg.Tenant),
				SkipExpiration: a.cfg.SkipExpiration,
			})
			if err != nil {
				return &exitError{code: ExitInvalid, msg: fmt.Sprintf("Failed to decode token: %v", err)}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				printReport(out, report)
			}

			if callGraph {
				if !cmd.Flags().Changed("endpoint") {
					endpoint = a.cfg.GraphEndpoint
				}
				if err := a.callGraph(cmd.Context(), out, report.Token, endpoint); err != nil {
					fmt.Fprintf(out, "Graph API test failed: %v\n", err)
				}
			}

			return exitFor(report)
		},
	}

	flags := cmd.Flags()
	flags.Bool("skip-expiration", false, "do not fail expired tokens")
	flags.BoolVar(&asJSON, "json", false, "print the report as JSON")
	flags.BoolVar(&callGraph, "graph", false, "call Microsoft Graph with the token after validation")
	flags.StringVar(&endpoint, "endpoint", "", "Graph endpoint for --graph (default from config, \"me\")")
	a.bind(flags.Lookup("skip-expiration"), "skip_expiration")

	return cmd
}

// readToken returns the token argument, or prompts for one on standard input.
func (a *app) readToken(args []string) (string, error) {
	if len(args) == 1 {
		if raw := strings.TrimSpace(args[0]); raw != "" {
			return raw, nil
		}
		return "", errNoToken
	}

	fmt.Fprint(a.streams.Err, "Enter token: ")
	line, err := bufio.NewReader(a.streams.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("could not read token: %w", err)
	}
	raw := strings.TrimSpace(line)
	if raw == "" {
		return "", errNoToken
	}
	return raw, nil
}

func exitFor(report *aadtoken.Report) error {
	switch report.Result() {
	case "valid":
		return nil
	case "indeterminate":
		return &exitError{code: ExitIndeterminate}
	default:
		return &exitError{code: ExitInvalid}
	}
}
