package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/paywalls-net/filter/adapters"
	"github.com/paywalls-net/filter/adapters/fasthttpd"
	lambdahost "github.com/paywalls-net/filter/adapters/lambda"
	"github.com/paywalls-net/filter/app"
	"github.com/paywalls-net/filter/config"
	"github.com/paywalls-net/filter/routes"
)

// serveCmd returns the command that runs the filter as a long-lived server.
func serveCmd() *cobra.Command {
	var configPath string
	var runtimeName string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the filter in front of an origin",
		Long: `Run the filter as a long-lived process on one of the supported host
runtimes. In nethttp mode it serves as a reverse-proxy sidecar; in lambda
mode it handles API Gateway proxy events; in fasthttp mode it serves the
same sidecar role on a fasthttp server.

Examples:
  pwfilter serve
  pwfilter serve --config filter.yaml
  pwfilter serve --runtime fasthttp`,
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := adapters.ParseHost(runtimeName)
			if err != nil {
				return err
			}

			cfg, err := config.NewFromFile(cmd.Context(), configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			logger, err := app.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			deps, err := app.NewDependencies(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			if err := deps.Start(cmd.Context()); err != nil {
				return err
			}

			switch host {
			case adapters.HostLambda:
				return runLambda(deps)
			case adapters.HostFastHTTP:
				return runFastHTTP(deps)
			default:
				return runNetHTTP(deps)
			}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (environment variables take precedence)")
	cmd.Flags().StringVar(&runtimeName, "runtime", "nethttp", "Host runtime: nethttp, lambda or fasthttp")

	return cmd
}

// runNetHTTP serves the chi router and shuts down gracefully on SIGINT or
// SIGTERM.
func runNetHTTP(deps *app.Dependencies) error {
	router, err := routes.SetupRoutes(deps)
	if err != nil {
		return err
	}

	cfg := deps.Config
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		deps.Logger.Info("sidecar listening",
			zap.String("addr", srv.Addr),
			zap.String("origin", cfg.Server.OriginURL),
			zap.Bool("tls", cfg.Server.TLS.Enabled))

		var serveErr error
		if cfg.Server.TLS.Enabled {
			serveErr = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			serveErr = srv.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case serveErr := <-errCh:
		return serveErr
	case sig := <-quit:
		deps.Logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		deps.Logger.Error("server shutdown failed", zap.Error(err))
	}
	return deps.Close(ctx)
}

// runLambda hands API Gateway proxy events to the filter and forwards the
// rest to the origin, since a proxy integration must always answer.
func runLambda(deps *app.Dependencies) error {
	forward, err := newLambdaForwarder(deps)
	if err != nil {
		return err
	}

	handler := lambdahost.New(deps.Gate, deps.Config.Signals, deps.Logger)

	awslambda.Start(func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		resp, err := handler.Handle(ctx, event)
		if err != nil {
			deps.Logger.Error("event handling failed", zap.Error(err))
			return events.APIGatewayProxyResponse{StatusCode: http.StatusBadGateway, Body: "Bad Gateway."}, nil
		}
		if resp != nil {
			return *resp, nil
		}
		return forward(ctx, event)
	})
	return nil
}

// newLambdaForwarder builds the origin fetch used for requests the filter
// does not intercept.
func newLambdaForwarder(deps *app.Dependencies) (func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error), error) {
	if deps.Config.Server.OriginURL == "" {
		return nil, fmt.Errorf("origin URL is required in lambda mode")
	}
	base, err := url.Parse(deps.Config.Server.OriginURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse origin URL: %w", err)
	}

	client := &http.Client{Timeout: deps.Config.Server.WriteTimeout}

	return func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		rc := lambdahost.NewRequestContext(event, deps.Config.Signals)

		body := event.Body
		if event.IsBase64Encoded {
			decoded, decodeErr := base64.StdEncoding.DecodeString(event.Body)
			if decodeErr != nil {
				return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "Bad Request."}, nil
			}
			body = string(decoded)
		}

		target := base.ResolveReference(&url.URL{Path: rc.Path, RawQuery: rc.RawQuery})
		req, reqErr := http.NewRequestWithContext(ctx, rc.Method, target.String(), strings.NewReader(body))
		if reqErr != nil {
			return events.APIGatewayProxyResponse{StatusCode: http.StatusBadGateway, Body: "Bad Gateway."}, nil
		}
		for name, value := range rc.Headers {
			req.Header.Set(name, value)
		}
		req.Host = rc.Host

		resp, doErr := client.Do(req)
		if doErr != nil {
			deps.Logger.Error("origin fetch failed", zap.String("path", rc.Path), zap.Error(doErr))
			return events.APIGatewayProxyResponse{StatusCode: http.StatusBadGateway, Body: "Bad Gateway."}, nil
		}
		defer resp.Body.Close()

		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return events.APIGatewayProxyResponse{StatusCode: http.StatusBadGateway, Body: "Bad Gateway."}, nil
		}

		headers := make(map[string]string, len(resp.Header))
		for name := range resp.Header {
			headers[name] = resp.Header.Get(name)
		}

		return events.APIGatewayProxyResponse{
			StatusCode: resp.StatusCode,
			Headers:    headers,
			Body:       string(respBody),
		}, nil
	}, nil
}

// runFastHTTP serves the same sidecar role on a fasthttp server.
func runFastHTTP(deps *app.Dependencies) error {
	cfg := deps.Config
	if cfg.Server.OriginURL == "" {
		return fmt.Errorf("origin URL is required in fasthttp mode")
	}
	target, err := url.Parse(cfg.Server.OriginURL)
	if err != nil {
		return fmt.Errorf("failed to parse origin URL: %w", err)
	}

	originAddr := target.Host
	if target.Port() == "" {
		if target.Scheme == "https" {
			originAddr += ":443"
		} else {
			originAddr += ":80"
		}
	}
	origin := &fasthttp.HostClient{
		Addr:  originAddr,
		IsTLS: target.Scheme == "https",
	}

	handler := fasthttpd.New(deps.Gate, cfg.Signals, deps.Logger)

	srv := &fasthttp.Server{
		Handler: func(rctx *fasthttp.RequestCtx) {
			// The request context doubles as the cancellation context.
			if handler.Handle(rctx, rctx) {
				return
			}
			forwardFastHTTP(origin, rctx, deps.Logger)
		},
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		deps.Logger.Info("sidecar listening",
			zap.String("addr", cfg.Server.Address()),
			zap.String("origin", cfg.Server.OriginURL),
			zap.String("runtime", "fasthttp"))

		var serveErr error
		if cfg.Server.TLS.Enabled {
			serveErr = srv.ListenAndServeTLS(cfg.Server.Address(), cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			serveErr = srv.ListenAndServe(cfg.Server.Address())
		}
		if serveErr != nil {
			errCh <- serveErr
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case serveErr := <-errCh:
		return serveErr
	case sig := <-quit:
		deps.Logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	if err := srv.Shutdown(); err != nil {
		deps.Logger.Error("server shutdown failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return deps.Close(ctx)
}

// forwardFastHTTP relays one request to the origin in place.
func forwardFastHTTP(origin *fasthttp.HostClient, rctx *fasthttp.RequestCtx, logger *zap.Logger) {
	req := &rctx.Request
	resp := &rctx.Response

	req.Header.Del(fasthttp.HeaderConnection)

	if err := origin.Do(req, resp); err != nil {
		logger.Error("origin proxy error",
			zap.ByteString("path", rctx.Path()),
			zap.Error(err))
		resp.Reset()
		rctx.SetStatusCode(fasthttp.StatusBadGateway)
		rctx.SetBodyString("Bad Gateway.")
		return
	}

	resp.Header.Del(fasthttp.HeaderConnection)
}
