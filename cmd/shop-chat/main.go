// Command shop-chat is an interactive shopping assistant over the shop
// engine. It reads one utterance per line from stdin and prints the agent's
// reply. Type "quit" or press Ctrl-D to exit.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"shopledger/internal/agent"
	"shopledger/internal/repository"
	"shopledger/internal/shop"
)

func main() {
	var (
		databaseURL string
		userID      string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&userID, "user", "u_1001", "user ID for the session")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, userID); err != nil {
		slog.Error("chat session failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, userID string) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	store := repository.NewStore(pool, 0)
	if err := store.WarmReplayFilter(ctx); err != nil {
		return errors.Wrap(err, "warm replay filter")
	}

	chat := agent.New(shop.NewService(store), userID)

	fmt.Printf("Shopping assistant ready (user %s). Try 'balance' or 'show products'.\n", userID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "quit" || line == "exit" {
			break
		}
		if line == "" {
			continue
		}

		reply, err := chat.Handle(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Printf("error: %s\n", err)
			continue
		}
		fmt.Println(reply)
	}

	fmt.Println("bye")
	return scanner.Err()
}
