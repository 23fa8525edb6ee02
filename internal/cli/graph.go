package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/entratools/aad-token-validator/graph"
	"github.com/entratools/aad-token-validator/token"
)

var errIDToken = errors.New("cannot test Graph API with an ID token, an access token is required")

func newGraphCommand(a *app) *cobra.Command {
	var endpoint string

	cmd := &cobra.Command{
		Use:   "graph [token]",
		Short: "Call Microsoft Graph with an access token",
		Long: `Call Microsoft Graph with an access token and print the answer.

The token is not validated first; Graph decides whether it accepts it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.readToken(args)
			if err != nil {
				return err
			}
			tok, err := token.Decode(raw)
			if err != nil {
				return &exitError{code: ExitInvalid, msg: fmt.Sprintf("Failed to decode token: %v", err)}
			}

			if !cmd.Flags().Changed("endpoint") {
				endpoint = a.cfg.GraphEndpoint
			}
			return a.callGraph(cmd.Context(), cmd.OutOrStdout(), tok, endpoint)
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Graph endpoint, relative to the Graph root or an absolute https URL (default from config, \"me\")")

	return cmd
}

// callGraph calls endpoint with tok and prints the pretty-printed answer.
func (a *app) callGraph(ctx context.Context, w io.Writer, tok *token.Token, endpoint string) error {
	fmt.Fprintln(w, "\n=== Graph API Test ===")
	if tok.Type() != token.TypeAccess {
		a.log.Warn("Graph API test skipped: token is an ID token")
		return errIDToken
	}

	client, err := graph.New(graph.WithBaseURL(a.cfg.GraphBaseURL), graph.WithTimeout(a.cfg.HTTPTimeout))
	if err != nil {
		return err
	}

	a.log.WithField("url", client.URL(endpoint)).Debug("calling Microsoft Graph")
	resp, err := client.Call(ctx, tok.Raw(), endpoint)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Body, "", "  "); err != nil {
		return err
	}
	fmt.Fprintf(w, "Graph API response (%d):\n%s\n", resp.StatusCode, pretty.String())
	return nil
}
