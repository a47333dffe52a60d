package bot

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/inbox"
)

const updateTimeoutSeconds = 30

// TelegramAdapter long-polls Telegram, converts each update into
// platform-neutral segments, and replies with the router's answer.
type TelegramAdapter struct {
	logger *slog.Logger
	bot    *tgbotapi.BotAPI
	router *Router
}

func NewTelegramAdapter(log *slog.Logger, token string, router *Router) (*TelegramAdapter, error) {
	if log == nil {
		log = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramAdapter{
		logger: log.With(slog.String("adapter", "telegram")),
		bot:    bot,
		router: router,
	}, nil
}

// Run polls for updates until the context is canceled. Each message is
// handled on its own goroutine so a slow inbox delivery does not stall
// the poll loop.
func (a *TelegramAdapter) Run(ctx context.Context) error {
	a.logger.Info("start", slog.String("username", a.bot.Self.UserName))
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = updateTimeoutSeconds
	updates := a.bot.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			// Drain so the library's polling goroutine can exit; an
			// in-flight long poll otherwise keeps the getUpdates
			// session alive past shutdown.
			for range updates {
			}
			a.logger.Info("stop")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				a.logger.Info("updates channel closed")
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			go a.handle(ctx, update.Message)
		}
	}
}

func (a *TelegramAdapter) handle(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	event, segments := a.convert(msg)
	if len(segments) == 0 {
		return
	}
	a.logger.Info("inbound message",
		slog.String("user", event.UserID),
		slog.Int("segments", len(segments)))

	reply := a.router.Handle(ctx, event, segments)
	if reply == "" {
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	out.ReplyToMessageID = msg.MessageID
	if _, err := a.bot.Send(out); err != nil {
		a.logger.Error("send reply failed",
			slog.String("user", event.UserID),
			slog.Any("error", err))
	}
}

// convert maps one Telegram message to the neutral segment model: the
// text or caption first, then every attached medium with its resolved
// download URL.
func (a *TelegramAdapter) convert(msg *tgbotapi.Message) (inbox.Event, []inbox.Segment) {
	event := inbox.Event{
		UserID:   strconv.FormatInt(msg.From.ID, 10),
		Mentions: collectMentions(msg),
	}

	var segments []inbox.Segment
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text != "" {
		segments = append(segments, inbox.Segment{Type: inbox.SegmentText, Text: text})
	}
	media := func(kind inbox.SegmentType, fileID, name string) {
		if seg, ok := a.media(kind, fileID, name); ok {
			segments = append(segments, seg)
		}
	}

	if len(msg.Photo) > 0 {
		media(inbox.SegmentImage, largestPhoto(msg.Photo).FileID, "")
	}
	if msg.Sticker != nil {
		media(inbox.SegmentImage, msg.Sticker.FileID, "")
	}
	if msg.Audio != nil {
		media(inbox.SegmentAudio, msg.Audio.FileID, msg.Audio.FileName)
	}
	if msg.Voice != nil {
		media(inbox.SegmentAudio, msg.Voice.FileID, "")
	}
	if msg.Video != nil {
		media(inbox.SegmentVideo, msg.Video.FileID, msg.Video.FileName)
	}
	if msg.Animation != nil {
		media(inbox.SegmentVideo, msg.Animation.FileID, msg.Animation.FileName)
	}
	if msg.Document != nil {
		switch {
		case strings.HasPrefix(msg.Document.MimeType, "image/"):
			media(inbox.SegmentImage, msg.Document.FileID, msg.Document.FileName)
		case strings.HasPrefix(msg.Document.MimeType, "audio/"):
			media(inbox.SegmentAudio, msg.Document.FileID, msg.Document.FileName)
		case strings.HasPrefix(msg.Document.MimeType, "video/"):
			media(inbox.SegmentVideo, msg.Document.FileID, msg.Document.FileName)
		}
	}
	return event, segments
}

var fileURLForTest func(fileID string) (string, error)

func (a *TelegramAdapter) fileURL(fileID string) (string, error) {
	if fileURLForTest != nil {
		return fileURLForTest(fileID)
	}
	return a.bot.GetFileDirectURL(fileID)
}

// media builds one media segment. A file whose download URL cannot be
// resolved is dropped here; an empty source URL would only produce a
// dead link and a doomed dump downstream.
func (a *TelegramAdapter) media(kind inbox.SegmentType, fileID, name string) (inbox.Segment, bool) {
	url, err := a.fileURL(fileID)
	if err != nil {
		a.logger.Warn("resolve file url failed",
			slog.String("file_id", fileID),
			slog.Any("error", err))
		return inbox.Segment{}, false
	}
	if name == "" {
		name = fileID
	}
	return inbox.Segment{Type: kind, File: name, URL: url}, true
}

func collectMentions(msg *tgbotapi.Message) []inbox.Mention {
	var mentions []inbox.Mention
	entities := make([]tgbotapi.MessageEntity, 0, len(msg.Entities)+len(msg.CaptionEntities))
	entities = append(entities, msg.Entities...)
	entities = append(entities, msg.CaptionEntities...)
	for _, entity := range entities {
		if entity.Type != "text_mention" || entity.User == nil {
			continue
		}
		name := strings.TrimSpace(entity.User.UserName)
		if name == "" {
			name = strings.TrimSpace(entity.User.FirstName + " " + entity.User.LastName)
		}
		mentions = append(mentions, inbox.Mention{
			ID:   strconv.FormatInt(entity.User.ID, 10),
			Name: name,
		})
	}
	return mentions
}

func largestPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}
