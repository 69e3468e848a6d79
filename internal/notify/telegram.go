package notify

import (
	"context"
	"errors"
	"fmt"

	"reservation-engine/internal/config"
	"reservation-engine/internal/domain"
	"reservation-engine/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const timeLayout = "02.01.2006 15:04"

func NewBotAPI(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

// TelegramNotifier sends a short message to the affected principal's chat.
// Principals without a Telegram id are skipped.
type TelegramNotifier struct {
	sender     domain.TelegramSender
	identities domain.IdentityLookup
	resources  domain.ResourceLookup
	logger     *zerolog.Logger
}

func NewTelegramNotifier(sender domain.TelegramSender, identities domain.IdentityLookup, resources domain.ResourceLookup, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, identities: identities, resources: resources, logger: logger}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) Deliver(ctx context.Context, event events.LifecycleEvent) error {
	principal, err := n.identities.GetPrincipal(ctx, event.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get principal %d: %w", event.UserID, err)
	}
	if principal.TelegramID == 0 {
		return nil
	}

	resourceName := fmt.Sprintf("#%d", event.ResourceID)
	if res, err := n.resources.GetResource(ctx, event.ResourceID); err == nil && res.Name != "" {
		resourceName = res.Name
	}

	msg := tgbotapi.NewMessage(principal.TelegramID, FormatMessage(event, resourceName))
	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	n.logger.Debug().Int64("chat_id", principal.TelegramID).Str("event_type", event.Type).Msg("Telegram notification sent")
	return nil
}

// FormatMessage renders the human readable notification text.
func FormatMessage(event events.LifecycleEvent, resourceName string) string {
	when := fmt.Sprintf("%s - %s", event.Start.Format(timeLayout), event.End.Format(timeLayout))

	var text string
	switch event.Type {
	case events.EventReservationRequested:
		text = fmt.Sprintf("Reservation #%d for %s (%s) is waiting for approval.", event.ReservationID, resourceName, when)
	case events.EventReservationApproved:
		text = fmt.Sprintf("Reservation #%d for %s (%s) is approved.", event.ReservationID, resourceName, when)
	case events.EventReservationRejected:
		text = fmt.Sprintf("Reservation #%d for %s (%s) was rejected.", event.ReservationID, resourceName, when)
	case events.EventReservationCancelled:
		text = fmt.Sprintf("Reservation #%d for %s (%s) was cancelled.", event.ReservationID, resourceName, when)
	case events.EventReservationCompleted:
		text = fmt.Sprintf("Reservation #%d for %s (%s) is completed.", event.ReservationID, resourceName, when)
	case events.EventWaitlistSlotOpened:
		text = fmt.Sprintf("A slot you are waiting for opened on %s (%s). Confirm waitlist entry #%d to book it.", resourceName, when, event.WaitlistEntryID)
	default:
		text = fmt.Sprintf("%s: %s (%s)", event.Type, resourceName, when)
	}
	if event.Comment != "" {
		text += "\nComment: " + event.Comment
	}
	return text
}
