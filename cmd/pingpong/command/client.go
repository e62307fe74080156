package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pingpong/internal/config"
	"pingpong/internal/message"
	"pingpong/internal/metrics"
	"pingpong/internal/microservices/client"
	"pingpong/internal/shared"
	"pingpong/internal/transport"
)

type clientFlags struct {
	host          string
	port          int
	pingCount     uint32
	mode          string
	pingText      string
	maxRetries    int
	retryInterval time.Duration
}

var clientOpts clientFlags

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Send pings to a pong server",
	Long: `Connect to a pong server, retrying at a constant interval, and send the
same request --ping-count times, waiting for each response before the next.
A ping count of 0 keeps going until interrupted.

Modes:
  bidirectional   one bidirectional stream carries requests and responses
  unidirectional  requests and responses travel on separate one-way streams
  datagram        every request and response is a single datagram`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := clientOpts.apply(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runClient(ctx, cfg, transport.NewQUICDialer(transport.QUICOptions{
			HandshakeTimeout: cfg.HandshakeTimeout,
			IdleTimeout:      cfg.IdleTimeout,
		}))
	},
}

// apply copies the flags the user set over the loaded configuration.
func (f *clientFlags) apply(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("host") {
		c.Host = f.host
	}
	if flags.Changed("port") {
		c.Port = f.port
	}
	if flags.Changed("ping-count") {
		c.PingCount = f.pingCount
	}
	if flags.Changed("mode") {
		mode, err := shared.ParseMode(f.mode)
		if err != nil {
			return err
		}
		c.Mode = mode
	}
	if flags.Changed("ping-text") {
		c.PingText = f.pingText
	}
	if flags.Changed("max-retries") {
		c.MaxRetries = f.maxRetries
	}
	if flags.Changed("retry-interval") {
		c.RetryInterval = f.retryInterval
	}
	return nil
}

func runClient(ctx context.Context, c *config.Config, dialer transport.Dialer) error {
	var m *metrics.Metrics
	if c.PrometheusEnabled {
		m = metrics.New()
	}
	pinger := client.NewPingClient(client.Config{
		Host:                 c.Host,
		Port:                 c.Port,
		Mode:                 c.Mode,
		MaxRetries:           c.MaxRetries,
		RetryInterval:        c.RetryInterval,
		DatagramPollInterval: c.DatagramPollInterval,
	}, dialer, client.WithLogger(logger), client.WithMetrics(m))

	req := message.NewRequest(c.PingText)
	start := time.Now()
	err := pinger.SendMessage(ctx, req, c.PingCount)

	fmt.Println(renderSummary(summary{
		Server:    c.Addr(),
		Mode:      c.Mode,
		Requested: c.PingCount,
		Request:   req,
		Responses: pinger.Inbox().Responses(),
		Elapsed:   time.Since(start),
		State:     pinger.State().String(),
		Err:       err,
	}))

	// an interrupt is how a forever run is meant to end
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.host, "host", "127.0.0.1", "server host")
	cmd.Flags().IntVar(&f.port, "port", 4433, "server port")
	cmd.Flags().Uint32Var(&f.pingCount, "ping-count", 3, "number of round trips, 0 = forever")
	cmd.Flags().StringVar(&f.mode, "mode", "bidirectional", "bidirectional, unidirectional or datagram")
	cmd.Flags().StringVar(&f.pingText, "ping-text", "Ping!", "request payload")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", 3, "connection retries after the first attempt")
	cmd.Flags().DurationVar(&f.retryInterval, "retry-interval", time.Second, "wait between connection attempts")
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientOpts.register(clientCmd)
}
