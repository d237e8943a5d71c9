package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Dosada05/fractal-system/events"
	"github.com/Dosada05/fractal-system/models"
	"github.com/Dosada05/fractal-system/repositories"
)

const lookupTimeout = 10 * time.Second

// Sender is the part of *tgbotapi.BotAPI used for notifications.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// MemberLookup resolves member ids to chat ids.
type MemberLookup interface {
	ListByIDs(ctx context.Context, exec repositories.SQLExecutor, ids []int) ([]models.Member, error)
	ListFractalMembers(ctx context.Context, exec repositories.SQLExecutor, fractalID int) ([]models.Member, error)
}

// TelegramNotifier messages telegram members about their fractal. Sending is
// best effort: failures are logged and never reach the engine.
type TelegramNotifier struct {
	sender  Sender
	members MemberLookup
	logger  *slog.Logger
}

func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot initialization: %w", err)
	}
	bot.Debug = false
	return bot, nil
}

func NewTelegramNotifier(sender Sender, members MemberLookup, logger *slog.Logger) *TelegramNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramNotifier{sender: sender, members: members, logger: logger}
}

// Attach subscribes the notifier to every event it reacts to.
func (n *TelegramNotifier) Attach(bus *events.EventBus) {
	for _, t := range []events.EventType{
		events.FractalStarted,
		events.RoundStarted,
		events.RoundHalfTime,
		events.RepresentativeElected,
		events.FractalClosed,
	} {
		bus.SubscribeFunc(t, n.Handle)
	}
}

func (n *TelegramNotifier) Handle(evt events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	switch data := evt.Data.(type) {
	case events.FractalStartedEvent:
		n.broadcast(ctx, evt.FractalID, fmt.Sprintf("🚀 Фрактал «%s» начался! Участников: %d.", data.Fractal.Name, data.MemberCount))
	case events.RoundStartedEvent:
		for _, g := range data.Groups {
			n.notify(ctx, g.MemberIDs, fmt.Sprintf("🔔 Раунд %d начался. Ваша группа #%d (%d участников)%s.",
				data.Level, g.GroupID, len(g.MemberIDs), deadlineSuffix(data.Deadline)))
		}
	case events.RoundHalfTimeEvent:
		n.notify(ctx, data.MemberIDs, fmt.Sprintf("⏳ Прошла половина раунда %d%s. Не забудьте проголосовать!",
			data.Level, deadlineSuffix(data.Deadline)))
	case events.RepresentativeElectedEvent:
		if !data.Promoted {
			n.notify(ctx, data.Delegates, fmt.Sprintf("🏅 Вы избраны представителем группы #%d в финальном раунде %d.",
				data.GroupID, data.Level))
			return
		}
		n.notify(ctx, data.Delegates, fmt.Sprintf("🏅 Вы избраны представителем группы #%d и проходите в раунд %d.",
			data.GroupID, data.Level+1))
	case events.FractalClosedEvent:
		n.broadcast(ctx, evt.FractalID, fmt.Sprintf("🏁 Фрактал завершён на раунде %d.", data.FinalLevel))
	}
}

func deadlineSuffix(deadline *time.Time) string {
	if deadline == nil {
		return ""
	}
	return ", дедлайн " + deadline.UTC().Format("2006-01-02 15:04 UTC")
}

func (n *TelegramNotifier) broadcast(ctx context.Context, fractalID int, text string) {
	members, err := n.members.ListFractalMembers(ctx, nil, fractalID)
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to load fractal members", slog.Int("fractal_id", fractalID), slog.Any("error", err))
		return
	}
	n.send(ctx, members, text)
}

func (n *TelegramNotifier) notify(ctx context.Context, memberIDs []int, text string) {
	if len(memberIDs) == 0 {
		return
	}
	members, err := n.members.ListByIDs(ctx, nil, memberIDs)
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to load members", slog.Any("error", err))
		return
	}
	n.send(ctx, members, text)
}

func (n *TelegramNotifier) send(ctx context.Context, members []models.Member, text string) {
	for _, m := range members {
		if m.Platform != models.PlatformTelegram {
			continue
		}
		chatID, err := strconv.ParseInt(m.ExternalID, 10, 64)
		if err != nil {
			n.logger.WarnContext(ctx, "telegram member has non-numeric chat id", slog.Int("member_id", m.ID))
			continue
		}
		if _, err := n.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			n.logger.WarnContext(ctx, "telegram send failed", slog.Int("member_id", m.ID), slog.Any("error", err))
		}
	}
}
