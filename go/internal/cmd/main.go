package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction"
	"github.com/mcdev12/liveauction/go/internal/config"
	"github.com/mcdev12/liveauction/go/internal/identity"
	"github.com/mcdev12/liveauction/go/internal/session"
	"github.com/mcdev12/liveauction/go/internal/tui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printHelp()
		return nil
	}

	cfg, err := config.Load(getEnv("LIVEAUCTION_CONFIG", ""))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	interactive := args[0] == "watch"
	closeLog, err := setupLogging(cfg, interactive)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	switch args[0] {
	case "list":
		return runList(ctx, services)
	case "login":
		if len(args) < 2 {
			return errors.New("usage: liveauction login <display name>")
		}
		return runLogin(ctx, services, strings.Join(args[1:], " "))
	case "logout":
		return services.Identity.Clear(ctx)
	case "create":
		return runCreate(ctx, services, args[1:])
	case "watch":
		if len(args) < 2 {
			return errors.New("usage: liveauction watch <auction id>")
		}
		return runWatch(ctx, cfg, services, args[1])
	case "help", "--help", "-h":
		printHelp()
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printHelp() {
	fmt.Println(`liveauction - live auction room client

Usage:
  liveauction list                          list auctions
  liveauction login <display name>          sign in and remember the user
  liveauction logout                        forget the remembered user
  liveauction create <name:price> ...       create an auction as the current user
  liveauction watch <auction id>            join an auction room

Configuration is read from .env, $LIVEAUCTION_CONFIG (YAML) and the environment.`)
}

func runList(ctx context.Context, services *Services) error {
	auctions, err := services.Auctions.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list auctions: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSELLER")
	for _, a := range auctions {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.ID, a.Status, a.SellerID)
	}
	return w.Flush()
}

func runLogin(ctx context.Context, services *Services, name string) error {
	user, err := services.Users.Sync(ctx, name)
	if err != nil {
		if identity.IsTransitionError(err) {
			return fmt.Errorf("sign in was interrupted, run login again: %w", err)
		}
		return fmt.Errorf("failed to sync user: %w", err)
	}
	if err := services.Identity.Save(ctx, *user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	fmt.Printf("Signed in as %s (%s)\n", user.DisplayName, user.ID)
	return nil
}

func runCreate(ctx context.Context, services *Services, specs []string) error {
	user, err := services.Identity.Load(ctx)
	if err != nil {
		return fmt.Errorf("sign in first: %w", err)
	}

	items, err := parseItems(specs)
	if err != nil {
		return err
	}

	snap, err := services.Auctions.Create(ctx, auction.CreateRequest{SellerID: user.ID, Items: items})
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}
	fmt.Println(snap.ID)
	return nil
}

// parseItems reads name:price[:seconds] arguments
func parseItems(specs []string) ([]auction.NewItem, error) {
	if len(specs) == 0 {
		return nil, errors.New("usage: liveauction create <name:price[:seconds]> ...")
	}
	items := make([]auction.NewItem, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 || len(parts) > 3 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("invalid item %q", spec)
		}
		price, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("invalid price in %q", spec)
		}
		item := auction.NewItem{Name: strings.TrimSpace(parts[0]), StartingPrice: price}
		if len(parts) == 3 {
			sec, err := strconv.Atoi(parts[2])
			if err != nil || sec <= 0 {
				return nil, fmt.Errorf("invalid duration in %q", spec)
			}
			item.DurationSec = sec
		}
		items = append(items, item)
	}
	return items, nil
}

func runWatch(ctx context.Context, cfg *config.Config, services *Services, auctionID string) error {
	user, err := services.Identity.Load(ctx)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		log.Info().Msg("no remembered user, watching without bidding")
		user = &identity.User{}
	case err != nil:
		return fmt.Errorf("failed to load user: %w", err)
	}

	sess := setupSession(cfg, services, *user)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(tui.New(sess, sess.View()), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	sess.OnChange(func(v session.View) {
		program.Send(tui.ViewMsg(v))
	})

	done := make(chan error, 1)
	go func() {
		done <- sess.Run(ctx)
	}()
	sess.Open(auctionID)

	server := startStatusServer(cfg.StatusAddr, sess)

	log.Info().
		Str("auction_id", auctionID).
		Str("user_id", user.ID).
		Str("transport", cfg.Transport).
		Msg("watching auction")

	_, runErr := program.Run()
	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		runErr = nil
	}
	cancel()

	shutdownStatusServer(server)
	if err := <-done; err != nil {
		return fmt.Errorf("session failed: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("tui error: %w", runErr)
	}
	log.Info().Msg("watch shutdown complete")
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
