package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/Zereker/cattlechat/client"
	"github.com/Zereker/cattlechat/logging"
	"github.com/Zereker/cattlechat/notify"
	"github.com/Zereker/cattlechat/wire"
)

func run(ctx context.Context) error {
	logger, err := logging.New(os.Stderr, flags.logLevel, "text")
	if err != nil {
		return err
	}

	stdin := bufio.NewReader(os.Stdin)
	password, err := readPassword(stdin)
	if err != nil {
		return err
	}

	console := notify.NewConsole(logger, os.Stdout, notify.ColorOption(!flags.noColor))
	console.SetSelf(flags.user)

	// Only touched by the client's read loop.
	room := ""
	c, err := client.Dial(ctx, flags.server, flags.user, password,
		client.LoggerOption(logger),
		client.ChannelOption(flags.channel),
		client.EventOption(func(ev wire.ChatEvent) {
			if ev.Event == wire.EventChannelChanged {
				room = ev.Text
			}
			console.ChatEvent(room, ev.Event, ev.Username, ev.Text)
		}),
		client.ServerErrorOption(func(description string) {
			console.ChatEvent(room, wire.EventError, "", description)
		}),
		client.RoomListOption(func(users []string) {
			console.ChatEvent(room, wire.EventInfo, "", "Users: "+strings.Join(users, ", "))
		}),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := <-c.LoggedIn(); err != nil {
			return
		}
		if err := pump(ctx, c, stdin); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("input stopped", "error", err)
		}
		_ = c.Close()
	}()

	err = c.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// pump sends every stdin line until EOF or /quit.
func pump(ctx context.Context, c *client.Client, in *bufio.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		switch cmd, arg, _ := strings.Cut(line, " "); cmd {
		case "/quit":
			return nil
		case "/names":
			if err := c.RequestRoomList(ctx, strings.TrimSpace(arg)); err != nil {
				return err
			}
			continue
		}

		if err := c.Send(ctx, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func readPassword(in *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "Password for %s: ", flags.user)
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", errors.Wrap(err, "read password")
		}
		return string(pw), nil
	}

	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", errors.Wrap(err, "read password from stdin")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
