// vaultd serves the agent vault protocol. It always exposes the HTTP
// bridge; with --stream it additionally answers newline-delimited request
// envelopes on stdin/stdout, the transport agents on the device use.
package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/nexusclaw/agent-vault-protocol/cmd/flags"
	"github.com/nexusclaw/agent-vault-protocol/engine"
	"github.com/nexusclaw/agent-vault-protocol/hse"
	"github.com/nexusclaw/agent-vault-protocol/httpserver"
	"github.com/nexusclaw/agent-vault-protocol/interfaces"
)

var cliFlags = append([]cli.Flag{
	flags.BackendFlag,
	flags.ListenAddrFlag,
	&cli.BoolFlag{
		Name:  "stream",
		Value: false,
		Usage: "serve newline-delimited request envelopes on stdin/stdout",
	},
	&cli.StringFlag{
		Name:  "provision-pin",
		Usage: "provision the backend PIN digest before serving (tpm:// and vault:// backends)",
	},
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:   "vaultd",
		Usage:  "Serve the agent vault protocol over HTTP and an optional stdio stream",
		Flags:  cliFlags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	backendURI := cCtx.String(flags.BackendFlag.Name)
	listenAddr := cCtx.String(flags.ListenAddrFlag.Name)

	factory := hse.NewBackendFactory(logger)
	backend, err := factory.BackendFor(backendURI)
	if err != nil {
		// The protocol stays available for DISCOVER even without hardware.
		logger.Error("Secure element backend unavailable", "err", err, "backend", backendURI)
		backend = nil
	}

	if pin := cCtx.String("provision-pin"); pin != "" && backend != nil {
		provisioner, ok := backend.(interface {
			ProvisionPIN(ctx context.Context, pin string) error
		})
		if !ok {
			logger.Error("Backend does not support PIN provisioning", "backend", backendURI)
			return errors.New("backend does not support PIN provisioning")
		}
		if err := provisioner.ProvisionPIN(context.Background(), pin); err != nil {
			logger.Error("PIN provisioning failed", "err", err)
			return err
		}
		logger.Info("PIN digest provisioned")
	}

	eng := engine.New(backend, interfaces.NewSystemPlatform(), logger)

	cfg := flags.ConfigureServer(cCtx, logger, listenAddr)
	server, err := httpserver.New(cfg, nil)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}
	server.SetHandler(httpserver.NewHandler(eng, server.Metrics(), logger))

	server.RunInBackground()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cCtx.Bool("stream") {
		go serveStream(ctx, eng, os.Stdin, os.Stdout, logger)
	}

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	cancel()
	server.Shutdown()
	logger.Info("Server shutdown complete")

	return nil
}

// serveStream answers one request envelope per input line. Lines that do
// not start with '{' are not protocol traffic and are skipped, which lets
// the daemon share a console line with ordinary output.
func serveStream(ctx context.Context, eng *engine.Engine, r io.Reader, w io.Writer, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), 4096)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] != '{' {
			logger.Debug("Skipping non-protocol line")
			continue
		}

		out := eng.Process(ctx, []byte(line))
		w.Write(out)
		io.WriteString(w, "\n")
	}

	if err := scanner.Err(); err != nil {
		logger.Error("Stream loop terminated", "err", err)
	}
}
