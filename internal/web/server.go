// Package web exposes the bot over HTTP: a health endpoint and the
// Telegram webhook. It is also where agent effects get executed against
// the real storage and transport.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/conorfennell/studypal/internal/agent"
	"github.com/conorfennell/studypal/internal/schedule"
	"github.com/conorfennell/studypal/internal/storage"
	"github.com/conorfennell/studypal/internal/telegram"
)

// Server handles webhook traffic and turns agent effects into side effects.
type Server struct {
	echo          *echo.Echo
	agent         *agent.Agent
	db            *storage.DB
	tg            *telegram.Client
	allowedUserID int64
	now           func() time.Time
}

// NewServer wires the routes. allowedUserID of zero disables the sender
// gate, which is the local-development configuration.
func NewServer(a *agent.Agent, db *storage.DB, tg *telegram.Client, allowedUserID int64) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:          e,
		agent:         a,
		db:            db,
		tg:            tg,
		allowedUserID: allowedUserID,
		now:           time.Now,
	}

	e.GET("/", s.handleHealth)
	e.POST("/telegram/webhook", s.handleWebhook)
	return s
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	slog.Info("starting server", "addr", addr)
	return s.echo.Start(addr)
}

// Handler exposes the routes as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// handleWebhook always answers 200: Telegram retries non-2xx responses,
// and a poison update would otherwise be redelivered forever.
func (s *Server) handleWebhook(c echo.Context) error {
	var update telegram.Update
	if err := c.Bind(&update); err != nil {
		slog.Warn("discarding malformed update", "error", err)
		return c.NoContent(http.StatusOK)
	}

	ctx := c.Request().Context()
	chatID, senderID, text := flatten(update)
	if chatID == "" {
		return c.NoContent(http.StatusOK)
	}
	if s.allowedUserID != 0 && senderID != s.allowedUserID {
		slog.Warn("ignoring update from unknown sender", "sender_id", senderID)
		return c.NoContent(http.StatusOK)
	}

	if update.CallbackQuery != nil {
		if err := s.tg.AnswerCallbackQuery(ctx, update.CallbackQuery.ID); err != nil {
			slog.Warn("failed to answer callback query", "error", err)
		}
	}

	effects, err := s.agent.Handle(ctx, chatID, text)
	if err != nil {
		slog.Error("agent failed to handle update", "chat_id", chatID, "error", err)
		if sendErr := s.tg.SendText(ctx, chatID, "Something went wrong — please try again."); sendErr != nil {
			slog.Warn("failed to send error reply", "chat_id", chatID, "error", sendErr)
		}
		return c.NoContent(http.StatusOK)
	}

	s.execute(ctx, chatID, effects)
	return c.NoContent(http.StatusOK)
}

// flatten extracts the chat, sender, and effective text from whichever
// update variant arrived. A button press carries its payload in Data and is
// treated exactly like the user typing that phrase.
func flatten(update telegram.Update) (chatID string, senderID int64, text string) {
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.Message != nil {
			chatID = cb.Message.Chat.ChatID()
		}
		if cb.From != nil {
			senderID = cb.From.ID
		}
		return chatID, senderID, cb.Data
	case update.Message != nil:
		return flattenMessage(update.Message)
	case update.EditedMessage != nil:
		return flattenMessage(update.EditedMessage)
	}
	return "", 0, ""
}

func flattenMessage(msg *telegram.Message) (string, int64, string) {
	var senderID int64
	if msg.From != nil {
		senderID = msg.From.ID
	}
	return msg.Chat.ChatID(), senderID, msg.Text
}

// execute runs the effects in order. Persistence failures abort the rest of
// the batch; send failures are logged and skipped so one dropped message
// does not lose a committed write.
func (s *Server) execute(ctx context.Context, chatID string, effects []agent.Effect) {
	for _, effect := range effects {
		switch e := effect.(type) {
		case agent.SendText:
			if err := s.tg.SendText(ctx, chatID, e.Text); err != nil {
				slog.Warn("failed to send message", "chat_id", chatID, "error", err)
			}

		case agent.SendChoice:
			rows := make([][]telegram.InlineButton, 0, len(e.Buttons))
			for _, row := range e.Buttons {
				buttons := make([]telegram.InlineButton, 0, len(row))
				for _, choice := range row {
					buttons = append(buttons, telegram.InlineButton{Text: choice.Label, CallbackData: choice.Data})
				}
				rows = append(rows, buttons)
			}
			if err := s.tg.SendInlineKeyboard(ctx, chatID, e.Text, rows); err != nil {
				slog.Warn("failed to send keyboard", "chat_id", chatID, "error", err)
			}

		case agent.PersistStudy:
			if err := s.persistStudy(chatID, e); err != nil {
				slog.Error("failed to persist study", "chat_id", chatID, "topic", e.Topic, "error", err)
				return
			}

		case agent.PersistResourceLink:
			if _, err := s.db.AppendResource(chatID, e.Title, e.URL, e.RawText); err != nil {
				slog.Error("failed to persist resource", "chat_id", chatID, "url", e.URL, "error", err)
				return
			}

		case agent.NoOp:
			// Nothing to do.
		}
	}
}

// persistStudy appends the log entry and seeds the topic's first review.
// Restudying a topic keeps its existing review schedule.
func (s *Server) persistStudy(chatID string, e agent.PersistStudy) error {
	studyID, err := s.db.AppendStudy(chatID, e.Topic, e.RawText)
	if err != nil {
		return err
	}

	existing, err := s.db.ReviewByTopic(chatID, e.Topic)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	item := schedule.FirstReview(chatID, studyID, e.Topic, s.now())
	if err := s.db.SaveReview(item); err != nil {
		return fmt.Errorf("seeding review for topic %s: %w", e.Topic, err)
	}
	return nil
}
