package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/config"
	"github.com/rocketscienceinc/tictactoe-relay/internal/pkg"
	"github.com/rocketscienceinc/tictactoe-relay/internal/presenter"
	"github.com/rocketscienceinc/tictactoe-relay/internal/session"
	"github.com/rocketscienceinc/tictactoe-relay/internal/tictactoe"
)

var errQuit = errors.New("quit")

func main() {
	configPath := flag.String("config", "config.yml", "path to the config file")
	offline := flag.Bool("offline", false, "two players on this terminal, no relay")
	flag.Parse()

	conf := config.MustLoad(*configPath)

	// logs go to stderr so they don't interleave with the board
	logger := pkg.NewLogger(os.Stderr, conf.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	terminal := presenter.NewTerminal(os.Stdout)
	lines := readLines(os.Stdin)

	var err error
	if *offline {
		err = playOffline(ctx, terminal, lines)
	} else {
		err = playOnline(ctx, logger, conf.Client.RelayURL, terminal, lines)
	}

	if err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func playOffline(ctx context.Context, terminal *presenter.Terminal, lines <-chan string) error {
	controller := tictactoe.NewGameController(tictactoe.ModeOffline, terminal)
	controller.Reset()

	for {
		index, err := nextCell(ctx, lines)
		if err != nil {
			return err
		}

		if _, err = controller.Play(index); err != nil {
			terminal.WaitingStatus(err.Error())
			continue
		}

		if controller.State() == tictactoe.StateTerminal {
			terminal.Score(controller.Score())
			controller.Reset()
		}
	}
}

func playOnline(ctx context.Context, logger *slog.Logger, url string, terminal *presenter.Terminal, lines <-chan string) error {
	channel, err := session.Dial(ctx, url)
	if err != nil {
		return err
	}

	controller := tictactoe.NewGameController(tictactoe.ModeNetworked, terminal)
	client := session.NewClient(logger, channel, controller, terminal)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return client.Run(groupCtx)
	})

	group.Go(func() error {
		defer func() { _ = channel.Close() }()

		for {
			index, err := nextCell(groupCtx, lines)
			if err != nil {
				return err
			}

			err = client.Play(groupCtx, index)
			switch {
			case err == nil:
			case errors.Is(err, apperror.ErrGameFinished) && client.IsFinalized():
				terminal.Score(client.Score())
				return errQuit
			case errors.Is(err, apperror.ErrChannelLost):
				return err
			default:
				terminal.WaitingStatus(err.Error())
			}
		}
	})

	return group.Wait()
}

// nextCell - the next cell index typed by the player; "q" quits.
func nextCell(ctx context.Context, lines <-chan string) (int, error) {
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return 0, errQuit
			}

			line = strings.TrimSpace(line)
			if line == "q" {
				return 0, errQuit
			}

			index, err := strconv.Atoi(line)
			if err != nil {
				fmt.Println("enter a cell index 0-8, or q to quit")
				continue
			}

			return index, nil
		}
	}
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	return lines
}
