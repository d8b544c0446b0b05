// Package main provides the remote control client.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"github.com/samber/lo"

	"github.com/emacsmirror/gaplay/internal/api/control"
)

var (
	app     = kingpin.New("gaplayctl", "gaplay remote control client")
	server  = app.Flag("server", "Server address").Default("http://localhost:7070").Envar("GAPLAY_SERVER").String()
	token   = app.Flag("token", "Control token").Envar("GAPLAY_TOKEN").String()
	timeout = app.Flag("timeout", "Timeout for send and status").Default("10s").Duration()

	// send command
	sendCmd   = app.Command("send", "Send command lines")
	sendLines = sendCmd.Arg("line", "Command line, e.g. \"load /music/a.mp3\"").Required().Strings()

	// follow command
	followCmd = app.Command("follow", "Print response lines until the session ends")

	// status command
	statusCmd = app.Command("status", "Show session status")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := control.NewClient(http.DefaultClient, *server, *token)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case sendCmd.FullCommand():
		err = send(ctx, client, *sendLines)
	case followCmd.FullCommand():
		err = client.Follow(ctx, func(line string) error {
			_, err := fmt.Println(line)
			return err
		})
	case statusCmd.FullCommand():
		err = status(ctx, client)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func send(ctx context.Context, client *control.Client, lines []string) error {
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	return client.Send(ctx, lines...)
}

func status(ctx context.Context, client *control.Client) error {
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	fields, err := client.Status(ctx)
	if err != nil {
		return err
	}

	keys := lo.Keys(fields)
	slices.Sort(keys)
	width := lo.Max(lo.Map(keys, func(k string, _ int) int { return len(k) }))
	for _, k := range keys {
		fmt.Printf("%-*s  %s\n", width, k, formatValue(fields[k]))
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case []any:
		return strings.Join(lo.Map(x, func(e any, _ int) string { return fmt.Sprint(e) }), ",")
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}
