// Command console runs the receptionist as an interactive terminal chat
// against in-memory stores. Useful for trying the booking flow without
// WhatsApp, Postgres, or Redis.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	appconfig "github.com/shifalabs/clinic-receptionist/internal/config"
	"github.com/shifalabs/clinic-receptionist/internal/appointments"
	"github.com/shifalabs/clinic-receptionist/internal/conversation"
	"github.com/shifalabs/clinic-receptionist/internal/intake"
	"github.com/shifalabs/clinic-receptionist/internal/messaging"
	"github.com/shifalabs/clinic-receptionist/internal/notify"
	"github.com/shifalabs/clinic-receptionist/internal/schedule"
	"github.com/shifalabs/clinic-receptionist/internal/triage"
	"github.com/shifalabs/clinic-receptionist/pkg/logging"
)

const consolePhone = "03001234567"

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.NewWithWriter("error", os.Stderr)

	scheduler, err := schedule.NewEngine(cfg.ClinicOpenHour, cfg.ClinicCloseHour, cfg.SlotDurationMinutes, cfg.BookingHorizonDays)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid clinic hours: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var extractor conversation.Extractor
	if cfg.GeminiAPIKey != "" {
		gemini, err := conversation.NewGeminiExtractor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gemini init failed: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = gemini.Close() }()
		extractor = gemini
	} else {
		extractor = conversation.NewRuleExtractor(nil)
	}

	repo := appointments.NewInMemoryRepository()

	var notifier conversation.BookingNotifier
	if cfg.DoctorPhone != "" {
		notifier = notify.NewDoctorNotifier(messaging.NewConsoleSender(os.Stderr), nil, logger, cfg.DoctorPhone, "", cfg.ClinicName)
	}

	engine := conversation.NewEngine(conversation.EngineConfig{
		Sessions:     intake.NewMemoryStore(),
		Triage:       triage.NewClassifier(),
		Scheduler:    scheduler,
		Appointments: repo,
		Extractor:    extractor,
		Notifier:     notifier,
		Logger:       logger,
		ClinicName:   cfg.ClinicName,
		LLMTimeout:   cfg.LLMTimeout,
		IdleTimeout:  cfg.SessionIdleTimeout,
	})

	fmt.Printf("%s receptionist console. Type a message, or 'quit' to exit.\n\n", cfg.ClinicName)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			break
		}

		reply, err := engine.HandleMessage(ctx, consolePhone, text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		fmt.Printf("clinic> %s\n\n", reply)
	}
}
