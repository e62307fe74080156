package command

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pingpong/internal/admin"
	"pingpong/internal/config"
	"pingpong/internal/metrics"
	"pingpong/internal/microservices/server"
	"pingpong/internal/transport"
)

type serverFlags struct {
	host     string
	port     int
	certPath string
	keyPath  string
	pongText string
	rate     float64
	once     bool
}

var serverOpts serverFlags

const shutdownTimeout = 5 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Answer pings over QUIC",
	Long: `Listen for QUIC connections and answer every request with a pong, whichever
of the bidirectional, unidirectional or datagram modes the client uses.

The certificate and key are read from --certificate-path and --key-path; run
"pingpong gen-certs" to create a self-signed pair. When PINGPONG_ADMIN_ADDR is
set an HTTP admin API serves /healthz, /sessions and /metrics there.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serverOpts.apply(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runServer(cmd.Context(), cfg, serverOpts.once)
	},
}

func (f *serverFlags) apply(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		c.Host = f.host
	}
	if flags.Changed("port") {
		c.Port = f.port
	}
	if flags.Changed("certificate-path") {
		c.CertPath = f.certPath
	}
	if flags.Changed("key-path") {
		c.KeyPath = f.keyPath
	}
	if flags.Changed("pong-text") {
		c.PongText = f.pongText
	}
	if flags.Changed("rate") {
		c.ServerRate = f.rate
	}
}

func runServer(ctx context.Context, c *config.Config, once bool) error {
	srvConfig := server.Config{
		Host:            c.Host,
		Port:            c.Port,
		CertificatePath: c.CertPath,
		KeyPath:         c.KeyPath,
		PongText:        c.PongText,
		RequestRate:     c.ServerRate,
		QUIC: transport.QUICOptions{
			HandshakeTimeout: c.HandshakeTimeout,
			IdleTimeout:      c.IdleTimeout,
		},
	}
	ln, err := server.Listen(srvConfig)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if c.PrometheusEnabled || c.AdminAddr != "" {
		m = metrics.New()
	}
	opts := []server.Option{server.WithLogger(logger), server.WithMetrics(m)}
	if once {
		opts = append(opts, server.ServeOnce())
	}
	srv := server.NewPongServer(ln, srvConfig, opts...)

	var adminSrv *admin.Server
	if c.AdminAddr != "" {
		adminSrv = admin.NewServer(c.AdminAddr, admin.NewHandler(srv.Manager, m, logger))
		adminSrv.Start()
	}

	logger.Info("starting_pong_server",
		"addr", srv.Addr().String(),
		"admin_addr", c.AdminAddr,
		"once", once,
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ctx)
	}()

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received_shutdown_signal", "signal", sig.String())
	case serveErr = <-errChan:
		var ce *transport.ConnectionError
		if errors.As(serveErr, &ce) && ce.Kind == transport.ClosedLocally {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server_shutdown_incomplete", "error", err)
	}
	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin_shutdown_failed", "error", err)
		}
	}
	logger.Info("server_stopped_gracefully")
	return serveErr
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverOpts.host, "host", "127.0.0.1", "address to listen on")
	serverCmd.Flags().IntVar(&serverOpts.port, "port", 4433, "UDP port to listen on")
	serverCmd.Flags().StringVar(&serverOpts.certPath, "certificate-path", "cert.pem", "PEM certificate")
	serverCmd.Flags().StringVar(&serverOpts.keyPath, "key-path", "key.pem", "PEM private key")
	serverCmd.Flags().StringVar(&serverOpts.pongText, "pong-text", "Pong!", "response payload")
	serverCmd.Flags().Float64Var(&serverOpts.rate, "rate", 0, "requests per second per connection, 0 = unlimited")
	serverCmd.Flags().BoolVar(&serverOpts.once, "once", false, "exit after serving the first connection")
}
