package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nczempin/httpconn/client"
	"github.com/nczempin/httpconn/config"
	"github.com/nczempin/httpconn/errors"
	"github.com/nczempin/httpconn/logger"
	"github.com/nczempin/httpconn/protocol"
	"github.com/nczempin/httpconn/signal"
)

// PostOptions holds options for the post command
type PostOptions struct {
	*GlobalOptions

	Data        string
	File        string
	ContentType string
	Host        string
	Port        int
	Transport   string
	Secure      bool
	Timeout     time.Duration
	Raw         bool
}

// NewPostCommand creates the post command.
func NewPostCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &PostOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "post PATH",
		Short: "POST a payload and print the response",
		Long: `Send one POST request to the configured destination and print the
response payload: everything after the first 0x01, 0x02, 0x03 or '%' byte
of the response. Use --raw to print the whole response instead.

The command fails when the server answers with a status above 299 or when
the request could not be delivered.`,
		Example: `  # Post a literal payload
  httpconn post /submit --data 'hello' --host example.com

  # Post a file over TLS with the io_uring transport
  httpconn post /upload --file report.bin --secure --port 443 --transport iouring

  # Read the payload from stdin
  echo hi | httpconn post /echo --file -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.GlobalOptions)
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, cfg); err != nil {
				return err
			}
			payload, err := opts.payload(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runPost(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], payload, opts.Raw)
		},
	}

	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "payload to send")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the payload from a file, - for stdin")
	cmd.Flags().StringVar(&opts.ContentType, "content-type", "", "Content-Type header")
	cmd.Flags().StringVar(&opts.Host, "host", "", "destination host, or socket path for the unix transport")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "destination port")
	cmd.Flags().StringVar(&opts.Transport, "transport", "", "net, iouring, uring, unix or gnet")
	cmd.Flags().BoolVar(&opts.Secure, "secure", false, "use TLS")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "give up after this long, e.g. 5s")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "print the whole response")

	return cmd
}

// apply overrides cfg with the flags that were set explicitly.
func (o *PostOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("content-type") {
		cfg.ContentType = o.ContentType
	}
	if flags.Changed("host") {
		cfg.Host = o.Host
	}
	if flags.Changed("port") {
		cfg.Port = o.Port
	}
	if flags.Changed("transport") {
		cfg.Transport = o.Transport
	}
	if flags.Changed("secure") {
		cfg.Secure = o.Secure
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.Timeout
	}
	return cfg.Validate()
}

func (o *PostOptions) payload(stdin io.Reader) ([]byte, error) {
	switch {
	case o.File != "" && o.Data != "":
		return nil, fmt.Errorf("--data and --file are mutually exclusive")
	case o.File == "-":
		return io.ReadAll(stdin)
	case o.File != "":
		return os.ReadFile(o.File)
	default:
		return []byte(o.Data), nil
	}
}

// runPost sends one request and waits until it produced a result, a bad
// response or a failure.
func runPost(ctx context.Context, out io.Writer, cfg *config.Config, path string, payload []byte, raw bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	log := logger.WithComponent("post")
	wake := signal.New()

	tr, err := newEventTransport(cfg, wake)
	if err != nil {
		return err
	}
	defer tr.release()

	conn, err := client.New(tr, cfg.Host, cfg.Port,
		client.WithSecure(cfg.Secure),
		client.WithLogger(logger.WithComponent("connection")),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	id := conn.Post(path, payload, cfg.ContentType)
	log.Debug("posting", logger.Fields(logger.FieldRequestID, id, "path", path, logger.FieldBytes, len(payload)))

	var (
		result []byte
		bad    *protocol.BadResponse
		failed *protocol.FailedRequest
	)
	driver := &client.Driver{Conn: conn, Source: tr, Wake: wake, Interval: cfg.TickInterval}
	err = driver.Run(ctx, func() bool {
		if conn.HasRead() {
			if raw {
				result = conn.ReadRaw()
			} else {
				result = conn.Read()
			}
			return true
		}
		if r, ok := conn.HasBadResponse(); ok {
			bad = &r
			return true
		}
		if f, ok := conn.HasFailedRequest(); ok {
			failed = &f
			return true
		}
		return false
	})

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errors.NewTransportError(errors.TransportErrorTimeout,
			fmt.Sprintf("request %s got no answer within %s", id, cfg.Timeout), err)
	case err != nil:
		return fmt.Errorf("request %s: %w", id, err)
	case bad != nil:
		return fmt.Errorf("server answered with status %d", bad.StatusCode)
	case failed != nil:
		return fmt.Errorf("request %s failed: %w", failed.Request.ID, failed.Err)
	}

	_, err = out.Write(result)
	return err
}
