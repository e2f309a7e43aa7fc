package main

// main.go implements the timestampd inspector CLI: it polls a running
// timestampd process's GET /stats endpoint and prints the result either as
// pretty text or JSON, once or on a watch interval.
//
// © 2025 merkle-timestamp authors. MIT License.

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var version = "dev"

type options struct {
	target   string
	json     bool
	watch    bool
	interval time.Duration
	version  bool
}

func parseFlags() *options {
	opts := &options{}
	flag.StringVar(&opts.target, "target", "http://localhost:8080", "base URL of the timestampd server")
	flag.BoolVar(&opts.json, "json", false, "print the raw JSON stats payload")
	flag.BoolVar(&opts.watch, "watch", false, "poll repeatedly instead of a single fetch")
	flag.DurationVar(&opts.interval, "interval", 2*time.Second, "poll interval when -watch is set")
	flag.BoolVar(&opts.version, "version", false, "print version and exit")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	if opts.version {
		fmt.Println(version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	if opts.watch {
		ticker := time.NewTicker(opts.interval)
		defer ticker.Stop()
		for {
			if err := dumpOnce(ctx, opts); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			select {
			case <-ticker.C:
				continue
			case <-ctx.Done():
				return
			}
		}
	}

	if err := dumpOnce(ctx, opts); err != nil {
		fatal(err)
	}
}

func dumpOnce(ctx context.Context, opts *options) error {
	stats, err := fetchStats(ctx, opts.target)
	if err != nil {
		return err
	}

	if opts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	return prettyPrint(stats)
}

func fetchStats(ctx context.Context, base string) (map[string]any, error) {
	url := base + "/stats"
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", res.Status)
	}
	var data map[string]any
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

func prettyPrint(data map[string]any) error {
	fmt.Printf("Count:          %v\n", data["count"])
	fmt.Printf("Filled buckets: %v\n", data["filled_buckets"])
	fmt.Printf("Total capacity: %v\n", data["total_capacity"])
	fmt.Printf("Tree size:      %v\n", data["tree_size"])
	fmt.Printf("Has root:       %v\n", data["has_root"])
	if root, ok := data["root"]; ok {
		fmt.Printf("Root:           %v\n", root)
	}
	fmt.Printf("Shard count:    %v\n", data["shard_count"])
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "timestampd-inspect:", err)
	os.Exit(1)
}
