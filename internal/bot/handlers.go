package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"studko/internal/admin"
	"studko/internal/booking"
	"studko/internal/db"
	"studko/internal/notify"
)

const pendingListLimit = 10

var operator = booking.Actor{Operator: true}

func (b *OperatorBot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	// Only the operator chat may run commands
	chatID := message.Chat.ID
	if chatID != b.operatorChatID {
		b.logger.Warnw("Command from foreign chat", "chatID", chatID, "command", message.Command())
		b.reply(chatID, "Tento bot je len pre operátorov Študka.")
		return
	}

	switch message.Command() {
	case "pending":
		b.sendPending(ctx)
	case "start", "help":
		b.reply(chatID, "Študko operátor\n\n"+
			"/pending – čakajúce rezervácie, prihlášky tútorov a výzvy\n"+
			"Tlačidlá pod upozorneniami potvrdzujú, rušia alebo schvaľujú položky.")
	default:
		b.reply(chatID, "Neznámy príkaz. Použi /help.")
	}
}

func (b *OperatorBot) sendPending(ctx context.Context) {
	// Collect everything that waits for the operator
	bookings, err := b.bookings.Pending(ctx)
	if err != nil {
		b.logger.Errorw("Failed to list pending bookings", "error", err)
	}
	tutors, err := b.reviews.PendingTutors(ctx)
	if err != nil {
		b.logger.Errorw("Failed to list pending tutors", "error", err)
	}
	claims, err := b.reviews.PendingClaims(ctx)
	if err != nil {
		b.logger.Errorw("Failed to list pending claims", "error", err)
	}

	// Send a summary, then one message with buttons per item
	b.reply(b.operatorChatID, fmt.Sprintf("Čaká: %d rezervácií, %d prihlášok tútorov, %d výziev.",
		len(bookings), len(tutors), len(claims)))

	for i, bk := range bookings {
		if i == pendingListLimit {
			break
		}
		b.notify(ctx, notify.OperatorAlert{
			Text: fmt.Sprintf("📅 Rezervácia %s\nTermín: %s", bk.ID, bk.StartTime.Format("02.01.2006 15:04")),
			Actions: []notify.Action{
				{Label: "✅ Potvrdiť", Data: notify.CallbackData("booking", "confirm", bk.ID)},
				{Label: "❌ Zrušiť", Data: notify.CallbackData("booking", "cancel", bk.ID)},
			},
		})
	}
	for i, t := range tutors {
		if i == pendingListLimit {
			break
		}
		b.notify(ctx, notify.OperatorAlert{
			Text:    fmt.Sprintf("🎓 Tútor %s\nPredmety: %s", t.ID, strings.Join(t.Subjects, ", ")),
			Actions: reviewActions("tutor", t.ID),
		})
	}
	for i, c := range claims {
		if i == pendingListLimit {
			break
		}
		b.notify(ctx, notify.OperatorAlert{
			Text:    fmt.Sprintf("📱 %s výzva %s\n%s", c.Platform, c.ID, c.PostURL),
			Actions: reviewActions("claim", c.ID),
		})
	}
}

func (b *OperatorBot) notify(ctx context.Context, alert notify.OperatorAlert) {
	if err := b.NotifyOperator(ctx, alert); err != nil {
		b.logger.Errorw("Failed to send pending item", "error", err)
	}
}

func reviewActions(entity string, id uuid.UUID) []notify.Action {
	return []notify.Action{
		{Label: "✅ Schváliť", Data: notify.CallbackData(entity, "approve", id)},
		{Label: "❌ Zamietnuť", Data: notify.CallbackData(entity, "reject", id)},
	}
}

// handleCallbackQuery runs the action behind an inline button. Only presses
// in the operator chat are honored.
func (b *OperatorBot) handleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.Message.Chat == nil || q.Message.Chat.ID != b.operatorChatID {
		b.logger.Warnw("Callback from foreign chat", "data", q.Data)
		b.answer(q.ID, "Nepovolené")
		return
	}

	// Parse entity:action:id from the button
	entity, action, id, err := notify.ParseCallbackData(q.Data)
	if err != nil {
		b.logger.Warnw("Malformed callback", "error", err, "data", q.Data)
		b.answer(q.ID, "Neplatná akcia")
		return
	}

	// Run the action and answer the button press
	outcome, err := b.dispatch(ctx, entity, action, id)
	if err != nil {
		b.logger.Warnw("Operator action failed", "error", err, "entity", entity, "action", action, "id", id)
		b.answer(q.ID, failureText(err))
		return
	}

	b.logger.Infow("Operator action done", "entity", entity, "action", action, "id", id)
	b.answer(q.ID, outcome)

	// Editing the text drops the inline keyboard.
	edit := tgbotapi.NewEditMessageText(q.Message.Chat.ID, q.Message.MessageID, q.Message.Text+"\n\n➡️ "+outcome)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warnw("Failed to edit operator message", "error", err)
	}
}

func (b *OperatorBot) dispatch(ctx context.Context, entity, action string, id uuid.UUID) (string, error) {
	var err error
	switch entity + ":" + action {
	case "booking:confirm":
		_, err = b.bookings.Confirm(ctx, operator, id)
		return "Rezervácia potvrdená", err
	case "booking:complete":
		_, err = b.bookings.Complete(ctx, operator, id)
		return "Rezervácia dokončená", err
	case "booking:cancel":
		_, err = b.bookings.Cancel(ctx, operator, id)
		return "Rezervácia zrušená", err
	case "booking:mark-paid":
		_, err = b.bookings.MarkPaid(ctx, operator, id)
		return "Označené ako zaplatené", err
	case "tutor:approve":
		_, err = b.reviews.ApproveTutor(ctx, id)
		return "Tútor schválený", err
	case "tutor:reject":
		_, err = b.reviews.RejectTutor(ctx, id, "")
		return "Tútor zamietnutý", err
	case "claim:approve":
		_, err = b.reviews.ApproveClaim(ctx, id)
		return "Výzva schválená", err
	case "claim:reject":
		_, err = b.reviews.RejectClaim(ctx, id, "")
		return "Výzva zamietnutá", err
	}
	return "", fmt.Errorf("unknown action %s:%s", entity, action)
}

func (b *OperatorBot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Warnw("Failed to answer callback", "error", err)
	}
}

func failureText(err error) string {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return "Položka neexistuje"
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, admin.ErrNotPending):
		return "Stav sa medzitým zmenil"
	default:
		return "Akcia zlyhala"
	}
}
