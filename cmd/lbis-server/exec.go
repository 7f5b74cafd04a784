package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/KyleBrandon/lbis-server/pkg/server/commands"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const execTimeout = 30 * time.Second

var errBadOption = errors.New("options must be written as key=value")

func newExecCmd() *cobra.Command {
	var (
		url    string
		apiKey string
		user   string
		dm     bool
	)

	cmd := &cobra.Command{
		Use:   "exec <command> [subcommand] [key=value...]",
		Short: "Run a chat command against a running server",
		Example: `  lbis-server exec --user 1234 session add minutes=10
  lbis-server exec --user 1234 --dm wearer secret=hunter2
  lbis-server exec status`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request, err := buildRequest(args)
			if err != nil {
				return err
			}
			request.UserID = user
			request.DirectMessage = dm

			if len(apiKey) == 0 {
				apiKey = os.Getenv("LBIS_API_KEY")
			}

			response, err := postCommand(cmd.Context(), url, apiKey, request)
			if err != nil {
				return err
			}

			out := response.Message
			if response.Message == commands.PermissionDenied {
				out = color.New(color.FgRed).Sprint(out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)

			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://localhost:8080", "Server base url")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Command api key (defaults to $LBIS_API_KEY)")
	cmd.Flags().StringVar(&user, "user", "", "User id to run the command as")
	cmd.Flags().BoolVar(&dm, "dm", false, "Send as a direct message")

	return cmd
}

func buildRequest(args []string) (commands.Request, error) {
	request := commands.Request{
		Command: args[0],
		Options: map[string]string{},
	}

	rest := args[1:]
	if len(rest) > 0 && !strings.Contains(rest[0], "=") {
		request.Subcommand = rest[0]
		rest = rest[1:]
	}

	for _, arg := range rest {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || len(key) == 0 {
			return commands.Request{}, fmt.Errorf("%w: %q", errBadOption, arg)
		}
		request.Options[key] = value
	}

	return request, nil
}

func postCommand(ctx context.Context, baseURL string, apiKey string, request commands.Request) (commands.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	body, err := json.Marshal(request)
	if err != nil {
		return commands.Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/v1/commands", bytes.NewReader(body))
	if err != nil {
		return commands.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "ApiKey "+apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return commands.Response{}, fmt.Errorf("send command: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return commands.Response{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return commands.Response{}, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var response commands.Response
	if err := json.Unmarshal(data, &response); err != nil {
		return commands.Response{}, fmt.Errorf("decode response: %w", err)
	}

	return response, nil
}
