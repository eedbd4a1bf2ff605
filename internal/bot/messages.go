package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/Vovarama1992/otk-assistant/internal/inspection"
	"github.com/Vovarama1992/otk-assistant/internal/session"
)

const (
	msgWelcome = "OTK Assistant\n\n" +
		"Я помогу оформить результаты проверок ОТК.\n" +
		"Отправьте данные о проверке текстом, голосом или фото протокола, " +
		"я извлеку номера заказов и статус и попрошу подтвердить.\n\n" +
		"/help — справка, /status — текущая проверка."

	msgHelp = "Как пользоваться:\n" +
		"1. Отправьте сообщение, например «Заказы 101, 102 прошли проверку».\n" +
		"2. Или голосовое сообщение, или фото протокола.\n" +
		"3. Проверьте распознанные данные и нажмите «Согласен», «Исправить» или «Отменить».\n\n" +
		"Статусы: годно, в доработку, в брак."

	msgIdle         = "Нет проверки, ожидающей подтверждения."
	msgReplaced     = "Предыдущая проверка не была подтверждена и заменена новым сообщением."
	msgConfirmed    = "Проверка сохранена."
	msgAlreadySaved = "Эта проверка уже сохранена."
	msgRejected     = "Данные отклонены. Отправьте проверку заново."
	msgCancelled    = "Проверка отменена."
	msgExpired      = "Время на подтверждение истекло, данные не сохранены. Отправьте проверку заново."
	msgNeedsEdit    = "Не хватает номера заказа или статуса. Нажмите «Исправить»."
)

var errorTexts = map[inspection.ErrorKind]string{
	inspection.ErrMediaTooLarge:       "Файл слишком большой. Отправьте файл поменьше или напишите текстом.",
	inspection.ErrUnsupportedFormat:   "Этот формат файла не поддерживается. Отправьте голосовое, фото или текст.",
	inspection.ErrDurationExceeded:    "Голосовое сообщение слишком длинное. Разбейте его на несколько частей.",
	inspection.ErrResolutionExceeded:  "Разрешение изображения слишком большое. Уменьшите фото и отправьте снова.",
	inspection.ErrProviderTimeout:     "Сервис распознавания не ответил вовремя. Попробуйте ещё раз.",
	inspection.ErrProviderUnavailable: "Сервис распознавания временно недоступен. Попробуйте ещё раз чуть позже.",
	inspection.ErrProviderAuth:        "Сервис распознавания сейчас недоступен. Сообщите администратору.",
	inspection.ErrProviderRateLimit:   "Слишком много запросов к сервису распознавания. Попробуйте ещё раз через минуту.",
	inspection.ErrExtractionFailed:    "Не удалось распознать номера заказов и статус. Сформулируйте, например: «Заказ 10432 — годно».",
	inspection.ErrIncompleteCandidate: "Не хватает данных: нужен хотя бы один номер заказа и статус (годно, в доработку, в брак). Нажмите «Исправить».",
	inspection.ErrSessionExpired:      msgExpired,
	inspection.ErrInternal:            "Что-то пошло не так. Попробуйте ещё раз.",
}

func errorText(kind inspection.ErrorKind) string {
	if t, ok := errorTexts[kind]; ok {
		return t
	}
	return errorTexts[inspection.ErrInternal]
}

func notice(text string) Outbound {
	return Outbound{Type: OutboundNotification, Text: text}
}

func failure(kind inspection.ErrorKind) Outbound {
	return Outbound{Type: OutboundError, Text: errorText(kind), ErrorKind: kind}
}

// prompt — запрос подтверждения с кнопками.
func prompt(c *inspection.Candidate) Outbound {
	return Outbound{
		Type:      OutboundPrompt,
		Text:      summary(c),
		Candidate: c,
		Actions: []Button{
			{Action: session.ActionAccept, Label: "Согласен", Token: c.Token},
			{Action: session.ActionEdit, Label: "Исправить", Token: c.Token},
			{Action: session.ActionReject, Label: "Отменить", Token: c.Token},
		},
	}
}

func summary(c *inspection.Candidate) string {
	var b strings.Builder
	b.WriteString("Проверьте, пожалуйста, данные:\n\n")

	orders := "не распознаны"
	if len(c.OrderIDs) > 0 {
		orders = strings.Join(c.OrderIDs, ", ")
	}
	fmt.Fprintf(&b, "Заказы: %s\n", orders)
	fmt.Fprintf(&b, "Статус: %s\n", c.Status.Label())
	if c.Notes != "" {
		fmt.Fprintf(&b, "Комментарий: %s\n", c.Notes)
	}
	switch {
	case c.Clarification != "":
		fmt.Fprintf(&b, "\n%s\n", c.Clarification)
	case !c.Complete():
		b.WriteString("\n" + msgNeedsEdit + "\n")
	}
	b.WriteString("\nВсё верно?")
	return b.String()
}

func confirmedText(rec *inspection.ConfirmedInspection, replayed bool) string {
	head := msgConfirmed
	if replayed {
		head = msgAlreadySaved
	}
	return fmt.Sprintf("%s\nЗаказы: %s\nСтатус: %s", head, strings.Join(rec.OrderIDs, ", "), rec.Status.Label())
}

func statusText(s session.Session, now time.Time, timeout time.Duration) string {
	if s.State != session.StateAwaiting || s.Pending == nil {
		return msgIdle
	}
	left := s.ExpiresAt.Sub(now).Round(time.Minute)
	if left < 0 {
		left = 0
	}
	return fmt.Sprintf("Ожидает подтверждения (осталось ~%d мин из %d):\nЗаказы: %s\nСтатус: %s",
		int(left.Minutes()), int(timeout.Minutes()),
		strings.Join(s.Pending.OrderIDs, ", "), s.Pending.Status.Label())
}
