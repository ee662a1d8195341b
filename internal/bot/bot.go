// Package bot receives Slack events over HTTP and replies in the thread of
// the message that mentioned the assistant.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/tidwall/gjson"
	"github.com/xaenox/slack-recall/internal/assistant"
	"go.uber.org/zap"
)

const (
	ackText      = "Success."
	errorMessage = "Sorry, I couldn't answer that right now. Please try again."
)

var mentionPattern = regexp.MustCompile(`<@[^>]+>`)

type Answerer interface {
	Handle(ctx context.Context, req assistant.Request) (string, error)
}

// Poster posts a reply into a Slack thread.
type Poster interface {
	PostReply(ctx context.Context, channelID, threadTS, text string) error
}

type SlackPoster struct {
	client *slack.Client
}

func NewSlackPoster(client *slack.Client) *SlackPoster {
	return &SlackPoster{client: client}
}

func (p *SlackPoster) PostReply(ctx context.Context, channelID, threadTS, text string) error {
	_, _, err := p.client.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS))
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	return nil
}

type Bot struct {
	app           *fiber.App
	answerer      Answerer
	poster        Poster
	signingSecret string
	logger        *zap.Logger
	inflight      sync.WaitGroup
}

// New builds the HTTP surface. Requests are signature checked only when
// signingSecret is set.
func New(answerer Answerer, poster Poster, signingSecret string, logger *zap.Logger) *Bot {
	b := &Bot{
		app: fiber.New(fiber.Config{
			AppName:               "slack-recall",
			DisableStartupMessage: true,
		}),
		answerer:      answerer,
		poster:        poster,
		signingSecret: signingSecret,
		logger:        logger,
	}

	b.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	b.app.Post("/slack/events", b.handleEvents)
	return b
}

func (b *Bot) App() *fiber.App {
	return b.app
}

func (b *Bot) Start(addr string) error {
	b.logger.Info("Listening for Slack events", zap.String("addr", addr))
	return b.app.Listen(addr)
}

// Shutdown stops accepting requests. Call Wait afterwards to let in-flight
// replies finish.
func (b *Bot) Shutdown(ctx context.Context) error {
	return b.app.ShutdownWithContext(ctx)
}

// Wait blocks until every dispatched event has been answered.
func (b *Bot) Wait() {
	b.inflight.Wait()
}

func (b *Bot) handleEvents(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)

	if challenge := gjson.GetBytes(body, "challenge"); challenge.Exists() {
		b.logger.Info("Answering URL verification challenge")
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(challenge.String())
	}

	if b.signingSecret != "" {
		if err := b.verify(c, body); err != nil {
			b.logger.Warn("Rejected Slack request", zap.Error(err))
			return c.SendStatus(fiber.StatusUnauthorized)
		}
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		b.logger.Error("Failed to parse Slack event", zap.Error(err))
		return c.SendString(ackText)
	}

	if event.Type == slackevents.CallbackEvent {
		if mention, ok := event.InnerEvent.Data.(*slackevents.AppMentionEvent); ok && mention.BotID == "" {
			b.dispatch(mention)
		}
	}
	return c.SendString(ackText)
}

func (b *Bot) verify(c *fiber.Ctx, body []byte) error {
	header := http.Header{}
	header.Set("X-Slack-Signature", c.Get("X-Slack-Signature"))
	header.Set("X-Slack-Request-Timestamp", c.Get("X-Slack-Request-Timestamp"))

	verifier, err := slack.NewSecretsVerifier(header, b.signingSecret)
	if err != nil {
		return fmt.Errorf("read signature headers: %w", err)
	}
	if _, err := verifier.Write(body); err != nil {
		return fmt.Errorf("hash body: %w", err)
	}
	return verifier.Ensure()
}

// dispatch answers the mention in the background. The request handler never
// waits for it.
func (b *Bot) dispatch(ev *slackevents.AppMentionEvent) {
	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	req := assistant.Request{
		UserID: ev.User,
		Query:  StripMentions(ev.Text),
	}
	channelID := ev.Channel

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Recovered from panic while answering mention",
					zap.Any("panic", r),
					zap.String("channel_id", channelID),
					zap.String("user_id", req.UserID))
			}
		}()
		b.answer(context.Background(), channelID, threadTS, req)
	}()
}

func (b *Bot) answer(ctx context.Context, channelID, threadTS string, req assistant.Request) {
	logger := b.logger.With(
		zap.String("channel_id", channelID),
		zap.String("thread_ts", threadTS),
		zap.String("user_id", req.UserID))

	reply, err := b.answerer.Handle(ctx, req)
	if err != nil {
		logger.Error("Failed to answer mention", zap.Error(err))
		b.sendErrorMessage(ctx, channelID, threadTS, logger)
		return
	}

	if err := b.poster.PostReply(ctx, channelID, threadTS, reply); err != nil {
		logger.Error("Failed to post reply", zap.Error(err))
		return
	}
	logger.Info("Posted reply", zap.Int("length", len(reply)))
}

func (b *Bot) sendErrorMessage(ctx context.Context, channelID, threadTS string, logger *zap.Logger) {
	if err := b.poster.PostReply(ctx, channelID, threadTS, errorMessage); err != nil {
		logger.Error("Failed to post error message", zap.Error(err))
	}
}

// StripMentions removes <@U123> style markup from a message.
func StripMentions(text string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
}
