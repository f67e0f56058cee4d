// Command widget runs the chat session controller against a backend from the
// terminal: stdin lines are sent as messages, inbound messages are printed.
// Slash commands exercise the rest of the lifecycle.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/parleychat/parley-go/internal/api"
	"github.com/parleychat/parley-go/internal/config"
	"github.com/parleychat/parley-go/internal/model/chat"
	"github.com/parleychat/parley-go/internal/realtime"
	"github.com/parleychat/parley-go/internal/service/session"
	"github.com/parleychat/parley-go/internal/store"
)

// consoleNotifier renders the side-effect port onto the terminal.
type consoleNotifier struct{}

func (consoleNotifier) PlayAlertSound() {
	fmt.Print("\a")
}

func (consoleNotifier) ShowLocalNotification(title, body string) {
	fmt.Printf("\n[%s] %s\n> ", title, body)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	sessionStore, err := store.Open(cfg.Client.StorePath)
	if err != nil {
		logger.Fatal("failed to open session store", zap.Error(err))
	}
	defer sessionStore.Close()

	backend := api.NewClient(cfg.Client.BaseURL, cfg.Client.PublicKey, &http.Client{Timeout: 30 * time.Second})
	channel := realtime.NewChannel(cfg.Client.RealtimeURL, cfg.Client.UserName, cfg.Client.ReconnectDelay, logger)

	controller := session.NewController(sessionStore, backend, channel, consoleNotifier{}, session.Options{
		UserName:        cfg.Client.UserName,
		EscalationDelay: cfg.Client.EscalationDelay,
		Logger:          logger,
	})
	defer controller.Close()

	controller.Subscribe(func(ev session.Event) {
		if ev.Message != nil {
			if ev.Message.Sender != chat.SenderUser {
				fmt.Printf("\n%s: %s\n> ", ev.Message.Sender, ev.Message.Text)
			}
			return
		}
		fmt.Printf("\n-- session %s (%s) --\n> ", ev.Session.ID, ev.State)
	})

	if err := controller.Start(ctx); err != nil {
		logger.Warn("startup flow failed", zap.Error(err),
			zap.String("display", controller.ErrorMessage()))
	}

	printTranscript(controller)
	runInputLoop(ctx, controller, logger)
}

func printTranscript(controller *session.Controller) {
	for _, msg := range controller.Messages() {
		text := msg.Text
		if text == "" && msg.Attachment != nil {
			text = "[file] " + msg.Attachment.Filename
		}
		fmt.Printf("%s: %s\n", msg.Sender, text)
	}
	fmt.Print("> ")
}

func runInputLoop(ctx context.Context, controller *session.Controller, logger *zap.Logger) {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			handleLine(ctx, controller, logger, strings.TrimSpace(line))
			fmt.Print("> ")
		}
	}
}

func handleLine(ctx context.Context, controller *session.Controller, logger *zap.Logger, line string) {
	switch {
	case line == "":
	case line == "/retry":
		if err := controller.Retry(ctx); err != nil {
			fmt.Println(controller.ErrorMessage())
		}
	case line == "/new":
		if err := controller.StartNewConversation(ctx); err != nil {
			fmt.Println(controller.ErrorMessage())
		}
	case line == "/agent":
		if err := controller.EscalateToAgent(ctx); err != nil {
			fmt.Printf("escalation failed: %v\n", err)
		}
	case strings.HasPrefix(line, "/profile "):
		// /profile email name
		parts := strings.Fields(strings.TrimPrefix(line, "/profile "))
		if len(parts) < 2 {
			fmt.Println("usage: /profile <email> <name>")
			return
		}
		if err := controller.SetProfile(ctx, parts[0], strings.Join(parts[1:], " ")); err != nil {
			fmt.Printf("profile update failed: %v\n", err)
		}
	case strings.HasPrefix(line, "/send "):
		// /send path sends a file from disk.
		path := strings.TrimSpace(strings.TrimPrefix(line, "/send "))
		payload, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("cannot read %s: %v\n", path, err)
			return
		}
		if err := controller.SendAttachment(ctx, payload, filepath.Base(path)); err != nil {
			fmt.Printf("attachment failed: %v\n", err)
		}
	default:
		if err := controller.SendText(line); err != nil {
			logger.Warn("send failed", zap.Error(err))
			fmt.Println("message not delivered, it will stay in your log")
		}
	}
}
