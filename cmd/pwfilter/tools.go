package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/paywalls-net/filter/adapters"
	"github.com/paywalls-net/filter/app"
	"github.com/paywalls-net/filter/config"
	"github.com/paywalls-net/filter/models"
	"github.com/paywalls-net/filter/services/authorize"
	"github.com/paywalls-net/filter/services/rules"
	"github.com/paywalls-net/filter/version"
)

// checkCmd returns the command that simulates one request through the full
// pipeline, including an access log event for authorized bot traffic.
func checkCmd() *cobra.Command {
	var configPath string
	var userAgent string
	var method string
	var headerFlags []string

	cmd := &cobra.Command{
		Use:   "check <url>",
		Short: "Simulate a filtering decision for a URL",
		Long: `Run one synthetic request through detection, authorization and telemetry
exactly as the edge would, and print the resulting decision as JSON.

Examples:
  pwfilter check https://news.example.com/articles/42
  pwfilter check -A "GPTBot/1.0" https://news.example.com/articles/42
  pwfilter check -A "GPTBot/1.0" -H "X-Bot-Score: 12" news.example.com/feed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			if !strings.Contains(target, "://") {
				target = "https://" + target
			}
			u, err := url.Parse(target)
			if err != nil {
				return fmt.Errorf("failed to parse URL: %w", err)
			}
			if u.Host == "" {
				return fmt.Errorf("URL %q has no hostname", args[0])
			}
			path := u.Path
			if path == "" {
				path = "/"
			}

			headers := make(map[string]string)
			headers["host"] = u.Host
			for _, raw := range headerFlags {
				name, value, ok := strings.Cut(raw, ":")
				if !ok {
					return fmt.Errorf("invalid header %q, expected \"Name: Value\"", raw)
				}
				headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
			}
			if userAgent != "" {
				headers["user-agent"] = userAgent
			}

			deps, err := newToolDependencies(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer closeDependencies(deps)

			// Started so the access event is delivered, not dropped.
			if err := deps.Start(cmd.Context()); err != nil {
				return err
			}

			rc := &models.RequestContext{
				ID:       uuid.New().String(),
				Method:   method,
				Host:     u.Host,
				Path:     path,
				RawQuery: u.RawQuery,
				Headers:  headers,
				Signals:  adapters.ParseSignals(headers, deps.Config.Signals),
			}

			result := deps.Gate.Evaluate(cmd.Context(), rc)
			return printJSON(result)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (environment variables take precedence)")
	cmd.Flags().StringVarP(&userAgent, "user-agent", "A", "", "User-Agent for the simulated request")
	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method for the simulated request")
	cmd.Flags().StringArrayVarP(&headerFlags, "header", "H", nil, "Extra request header as \"Name: Value\" (repeatable)")

	return cmd
}

// classifyCmd returns the command that classifies one user-agent string.
func classifyCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "classify <user-agent>",
		Short: "Classify a user-agent string against the account ruleset",
		Long: `Resolve a user-agent string to browser, OS and, for known automated
agents, operator and agent identity.

Examples:
  pwfilter classify "GPTBot/1.0"
  pwfilter classify "Mozilla/5.0 (Macintosh) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := newToolDependencies(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer closeDependencies(deps)

			classification, err := deps.Classifier.Classify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(classification)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (environment variables take precedence)")

	return cmd
}

// rulesCmd returns the command that fetches and prints the account ruleset.
func rulesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Fetch and print the account's classification ruleset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := newToolDependencies(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer closeDependencies(deps)

			rs, err := deps.Rules.RuleSet(cmd.Context())
			if err != nil {
				return err
			}

			out := struct {
				Stats rules.Stats                 `json:"stats"`
				Rules []models.ClassificationRule `json:"rules"`
			}{deps.Rules.Stats(), rs.Rules}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (environment variables take precedence)")

	return cmd
}

// tokenCmd returns the command that introspects an agent token offline.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <jwt>",
		Short: "Introspect an agent token without verifying it",
		Long: `Decode a bearer token the way the access log does. The signature is not
checked; only the filter service verifies tokens.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := authorize.InspectToken(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Subject: %s\n", claims.Subject)
			fmt.Printf("Issuer:  %s\n", claims.Issuer)
			if !claims.IssuedAt.IsZero() {
				fmt.Printf("Issued:  %s\n", claims.IssuedAt.Format(time.RFC3339))
			}
			if !claims.ExpiresAt.IsZero() {
				fmt.Printf("Expires: %s (expired: %t)\n",
					claims.ExpiresAt.Format(time.RFC3339), claims.Expired(time.Now()))
			}
			raw, err := json.MarshalIndent(claims.Raw, "", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("Claims:\n%s\n", raw)
			return nil
		},
	}

	return cmd
}

// versionCmd returns the command that prints the module version.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pwfilter version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pwfilter %s\n", version.Version)
		},
	}
}

// newToolDependencies wires the full dependency graph for a one-shot
// command.
func newToolDependencies(ctx context.Context, configPath string) (*app.Dependencies, error) {
	cfg, err := config.NewFromFile(ctx, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return app.NewDependencies(ctx, cfg, logger)
}

// closeDependencies drains and closes a one-shot command's dependency
// graph, bounded by the configured shutdown timeout.
func closeDependencies(deps *app.Dependencies) {
	ctx, cancel := context.WithTimeout(context.Background(), deps.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := deps.Close(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

// printJSON writes one indented JSON document to stdout.
func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
