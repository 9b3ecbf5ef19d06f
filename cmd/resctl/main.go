// Command resctl drives a running node through its control service.
//
//	resctl [-addr host:port] list
//	resctl [-addr host:port] peers
//	resctl [-addr host:port] reserve ID
//	resctl [-addr host:port] unreserve ID
//	resctl [-addr host:port] watch
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"peerreserve/internal/clock"
	"peerreserve/internal/control"
)

var errUsage = errors.New("usage: resctl [-addr host:port] [-timeout d] list|peers|reserve ID|unreserve ID|watch")

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("resctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	defaultAddr := os.Getenv("CONTROL_ADDR")
	if defaultAddr == "" {
		defaultAddr = "127.0.0.1:7000"
	}
	addr := fs.String("addr", defaultAddr, "node control address")
	timeout := fs.Duration("timeout", 15*time.Second, "deadline for unary calls")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	cmd, rest := fs.Arg(0), fs.Args()
	if len(rest) > 0 {
		rest = rest[1:]
	}
	want := map[string]int{"list": 0, "peers": 0, "reserve": 1, "unreserve": 1, "watch": 0}
	n, ok := want[cmd]
	if !ok || len(rest) != n {
		return errUsage
	}

	client, err := control.Dial(*addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if cmd == "watch" {
		return withRetry(ctx, func() error {
			return client.Watch(ctx, func(ev control.Event) error {
				if ev.Message == "" {
					_, err := fmt.Fprintln(out, ev.Kind)
					return err
				}
				_, err := fmt.Fprintf(out, "%s: %s\n", ev.Kind, ev.Message)
				return err
			})
		})
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	switch cmd {
	case "list":
		var snap control.Snapshot
		err := withRetry(ctx, func() (err error) {
			snap, err = client.Inventory(ctx)
			return err
		})
		if err != nil {
			return err
		}
		return printSnapshot(out, snap)

	case "peers":
		var peers []string
		err := withRetry(ctx, func() (err error) {
			peers, err = client.Peers(ctx)
			return err
		})
		if err != nil {
			return err
		}
		for _, p := range peers {
			fmt.Fprintln(out, p)
		}
		return nil

	case "reserve":
		if err := withRetry(ctx, func() error { return client.Reserve(ctx, rest[0]) }); err != nil {
			return err
		}
		fmt.Fprintf(out, "reserved %s\n", rest[0])
		return nil

	default:
		if err := withRetry(ctx, func() error { return client.Unreserve(ctx, rest[0]) }); err != nil {
			return err
		}
		fmt.Fprintf(out, "released %s\n", rest[0])
		return nil
	}
}

// withRetry retries f while the node is unreachable. Other failures are
// returned as they are.
func withRetry(ctx context.Context, f func() error) error {
	return retry.Do(
		f,
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return status.Code(err) == codes.Unavailable
		}),
		retry.OnRetry(func(attempt uint, err error) {
			log.Warn().Err(err).Msgf("node unavailable, attempt: %d", attempt+1)
		}),
	)
}

func printSnapshot(out io.Writer, snap control.Snapshot) error {
	fmt.Fprintf(out, "node %s\n", snap.Self)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tSTATUS\tOWNER\tSINCE")
	for _, r := range snap.Resources {
		if !r.Reserved {
			fmt.Fprintf(w, "%s\tavailable\t-\t-\n", r.ID)
			continue
		}
		since := clock.Timestamp(r.Timestamp).Time().UTC().Format(time.RFC3339)
		fmt.Fprintf(w, "%s\treserved\t%s\t%s\n", r.ID, r.Owner, since)
	}
	return w.Flush()
}
