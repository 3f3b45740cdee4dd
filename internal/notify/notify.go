package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reconciler/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Summary describes one automatic matching run.
type Summary struct {
	WindowStart    time.Time
	WindowEnd      time.Time
	MatchesCreated int
	Conflicts      int
	Skipped        int
}

type Notifier interface {
	AutoMatchCompleted(ctx context.Context, summary Summary) error
}

// Sender is the subset of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	sender Sender
	chatID int64
}

func NewTelegram(sender Sender, chatID int64) *Telegram {
	return &Telegram{sender: sender, chatID: chatID}
}

// New returns a Telegram notifier when a bot token and chat are configured
// and a no-op notifier otherwise.
func New(cfg config.TelegramConfig, logger *slog.Logger) (Notifier, error) {
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		logger.Info("telegram notifications disabled")
		return Noop{}, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	logger.Info("telegram notifications enabled", "bot", bot.Self.UserName)
	return NewTelegram(bot, cfg.ChatID), nil
}

// AutoMatchCompleted posts a run summary. Runs that changed nothing are not
// reported.
func (t *Telegram) AutoMatchCompleted(ctx context.Context, summary Summary) error {
	if summary.MatchesCreated == 0 && summary.Conflicts == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatSummary(summary))
	if _, err := t.sender.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func FormatSummary(summary Summary) string {
	const layout = "2006-01-02 15:04"
	return fmt.Sprintf("Auto-match %s to %s UTC\nmatched: %d\nconflicts: %d\nleft for review: %d",
		summary.WindowStart.UTC().Format(layout),
		summary.WindowEnd.UTC().Format(layout),
		summary.MatchesCreated, summary.Conflicts, summary.Skipped)
}

type Noop struct{}

func (Noop) AutoMatchCompleted(context.Context, Summary) error {
	return nil
}
