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
	"strings"
	"syscall"

	"WalletChat/pkg/logger"
	"WalletChat/sdk/go/walletchat"
)

// sender 是控制台需要的 SDK 子集。
type sender interface {
	Send(ctx context.Context, userID, text string) (walletchat.Reply, error)
}

// main 是 WalletChat 控制台客户端的入口，逐行把输入作为聊天消息发送给守护进程。
func main() {
	server := flag.String("server", envOr("WALLETCHAT_SERVER", "http://127.0.0.1:8080"), "walletchatd base URL")
	user := flag.String("user", envOr("WALLETCHAT_USER", "console"), "chat user id")
	secret := flag.String("secret", os.Getenv("WALLETCHAT_WEBHOOK_SECRET"), "webhook shared secret")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Named("console")
	client, err := walletchat.NewClient(*server, nil)
	if err != nil {
		log.Error("创建客户端失败", slog.Any("error", err))
		os.Exit(1)
	}
	client.SetWebhookSecret(*secret)
	if err := client.Health(ctx); err != nil {
		log.Error("无法连接 walletchatd", slog.String("server", *server), slog.Any("error", err))
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "Connected to %s as %q. Type /help to begin, Ctrl-D to quit.\n", *server, *user)
	if err := repl(ctx, client, *user, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("控制台退出", slog.Any("error", err))
		os.Exit(1)
	}
}

// repl 读取输入直到 EOF。单条消息失败只打印错误，不退出。
func repl(ctx context.Context, client sender, userID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	prompt := func() { fmt.Fprint(out, "> ") }
	prompt()
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			prompt()
			continue
		}
		reply, err := client.Send(ctx, userID, text)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			prompt()
			continue
		}
		render(out, reply)
		prompt()
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

func render(out io.Writer, reply walletchat.Reply) {
	for _, msg := range reply.Messages {
		fmt.Fprintln(out, msg)
	}
	if len(reply.Buttons) == 0 {
		return
	}
	labels := make([]string, 0, len(reply.Buttons))
	for _, b := range reply.Buttons {
		labels = append(labels, fmt.Sprintf("[%s: %s]", b.Label, b.Command))
	}
	fmt.Fprintln(out, strings.Join(labels, " "))
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
