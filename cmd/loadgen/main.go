// Command loadgen drives the gateway socket with a paced stream of
// requests and reports response counts. It is a smoke and soak tool for a
// running gateway, not part of the serving path.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/threelight/redisgate/protocol"
)

type options struct {
	socketPath string
	action     string
	key        string
	value      string
	ratePerSec float64
	count      int
	conns      int
}

func main() {
	if err := run(); err != nil {
		slog.Error("load generation failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	opts := options{}
	flag.StringVar(&opts.socketPath, "socket", "/tmp/redis_proxy.sock", "Gateway Unix socket path")
	flag.StringVar(&opts.action, "action", "set", "Request action: set, del, sadd, srem")
	flag.StringVar(&opts.key, "key", "cs:DiskUsage:object1", "Request key")
	flag.StringVar(&opts.value, "value", `{"version":1,"disk":"/dev/sda1","usage":42.5}`, "Request value as JSON, empty to omit")
	flag.Float64Var(&opts.ratePerSec, "rate", 100, "Requests per second across all connections")
	flag.IntVar(&opts.count, "count", 1000, "Total requests to send, 0 to run until interrupted")
	flag.IntVar(&opts.conns, "conns", 1, "Concurrent connections")
	flag.Parse()

	if opts.ratePerSec <= 0 {
		return fmt.Errorf("rate must be positive, got %v", opts.ratePerSec)
	}
	if opts.conns <= 0 {
		return fmt.Errorf("conns must be positive, got %d", opts.conns)
	}

	var value json.RawMessage
	if opts.value != "" {
		if !json.Valid([]byte(opts.value)) {
			return fmt.Errorf("value is not valid JSON: %s", opts.value)
		}
		value = json.RawMessage(opts.value)
	}

	req := protocol.Request{
		Action: protocol.Action(opts.action),
		Key:    opts.key,
		Value:  value,
	}
	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	line = append(line, '\n')

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := rate.NewLimiter(rate.Limit(opts.ratePerSec), 1)
	perConn := 0
	if opts.count > 0 {
		perConn = (opts.count + opts.conns - 1) / opts.conns
	}

	var (
		mu      sync.Mutex
		ok      int
		rejects int
		failed  int
	)
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < opts.conns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, r, f := drive(ctx, opts.socketPath, line, limiter, perConn)
			mu.Lock()
			ok += o
			rejects += r
			failed += f
			mu.Unlock()
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	total := ok + rejects + failed
	fmt.Printf("sent %d requests in %s (%.1f req/s)\n",
		total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())
	fmt.Printf("  ok: %d  rejected: %d  failed: %d\n", ok, rejects, failed)

	if failed > 0 {
		return fmt.Errorf("%d requests failed", failed)
	}
	return nil
}

// drive sends up to limit requests on one connection, pacing sends through
// the shared limiter. A limit of zero means run until the context ends.
func drive(ctx context.Context, socketPath string, line []byte, limiter *rate.Limiter, limit int) (ok, rejects, failed int) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		slog.Error("dial failed", "socket", socketPath, "error", err)
		return 0, 0, 1
	}
	defer conn.Close()

	// Replies carry no delimiter, so decode them as a JSON stream.
	dec := json.NewDecoder(conn)
	for sent := 0; limit == 0 || sent < limit; sent++ {
		if err := limiter.Wait(ctx); err != nil {
			return ok, rejects, failed
		}

		if _, err := conn.Write(line); err != nil {
			slog.Error("write failed", "error", err)
			failed++
			return ok, rejects, failed
		}

		var resp protocol.Response
		if err := dec.Decode(&resp); err != nil {
			slog.Error("read response failed", "error", err)
			failed++
			return ok, rejects, failed
		}

		switch resp.Status {
		case protocol.StatusOk:
			ok++
		default:
			rejects++
			slog.Debug("request rejected", "message", resp.Message)
		}
	}
	return ok, rejects, failed
}
