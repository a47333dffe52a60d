// Package bot is the command layer between platform adapters and the
// inbox pipeline. It parses slash commands, manages the per-user
// account record, and forwards everything else to the configured
// inbox.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/account"
	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/inbox"
	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/pgp"
	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/siyuan"
)

// verbs maps every recognized command spelling, including locale
// aliases, to its canonical verb.
var verbs = map[string]string{
	"set":    "set",
	"设置":     "set",
	"更改":     "set",
	"reset":  "reset",
	"重置":     "reset",
	"unbind": "reset",
	"解绑":     "reset",
	"help":   "help",
	"帮助":     "help",
	"key":    "key",
	"公钥":     "key",
	"pgp公钥":  "key",
	"user":   "user",
	"用户":     "user",
	"当前用户":   "user",
	"inbox":  "inbox",
	"收集箱":    "inbox",
}

const usage = `/help [command]
    show this text, or details for one command
/set <key = value lines>
    change settings, one "key/path = value" per line
    (lines may be wrapped in a PGP message; see /key)
/reset
    delete the current account and return to defaults
/key
    show the bot's PGP public key
/user
    show the current account, secrets redacted
/inbox <token>
    quick inbox switch: on/off, or a mode (0/none, 1/cloud, 2/service)
---
anything else is forwarded to your inbox`

// Router dispatches one inbound message to a command handler or the
// default inbox flow and produces the reply text.
type Router struct {
	logger   *slog.Logger
	store    *account.Store
	patcher  *account.Patcher
	gateway  *pgp.Gateway
	registry *siyuan.Registry
}

func NewRouter(log *slog.Logger, store *account.Store, patcher *account.Patcher, gateway *pgp.Gateway, registry *siyuan.Registry) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		logger:   log.With(slog.String("service", "router")),
		store:    store,
		patcher:  patcher,
		gateway:  gateway,
		registry: registry,
	}
}

// Handle routes one message. Messages whose leading text segment
// starts with "/" are commands; everything else goes to the inbox.
// The returned string is the reply to send back to the user.
func (r *Router) Handle(ctx context.Context, event inbox.Event, segments []inbox.Segment) string {
	if name, args, ok := command(segments); ok {
		switch verbs[name] {
		case "set":
			return r.set(event.UserID, args)
		case "reset":
			return r.reset(event.UserID)
		case "help":
			return r.help(args)
		case "key":
			return r.key()
		case "user":
			return r.user(event.UserID)
		case "inbox":
			return r.inbox(event.UserID, args)
		default:
			return fmt.Sprintf("unknown command: /%s\nuse /help to list commands", name)
		}
	}
	return r.route(ctx, event, segments)
}

// command extracts the verb and argument text when the message is a
// slash command. A platform suffix after "@" on the verb is dropped.
func command(segments []inbox.Segment) (name, args string, ok bool) {
	if len(segments) == 0 || segments[0].Type != inbox.SegmentText {
		return "", "", false
	}
	text := strings.TrimSpace(segments[0].Text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	text = strings.TrimPrefix(text, "/")
	name = text
	if i := strings.IndexFunc(text, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }); i >= 0 {
		name, args = text[:i], strings.TrimSpace(text[i+1:])
	}
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(strings.TrimSpace(name)), args, true
}

func (r *Router) set(id, args string) string {
	if args == "" {
		return "missing settings\nuse /help set for the format"
	}
	acc := r.store.Get(id)
	applied, rejected, err := r.patcher.Apply(&acc, args)
	if err != nil {
		r.logger.Warn("apply settings failed", slog.String("user", id), slog.Any("error", err))
		return fmt.Sprintf("settings not applied: %v", err)
	}
	if len(applied) > 0 {
		if err := r.store.Put(acc); err != nil {
			r.logger.Error("persist account failed", slog.String("user", id), slog.Any("error", err))
			return fmt.Sprintf("saving settings failed: %v", err)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "applied %d item(s)", len(applied))
	for _, key := range applied {
		fmt.Fprintf(&b, "\n  - %s", key)
	}
	if len(rejected) > 0 {
		fmt.Fprintf(&b, "\nrejected %d item(s)", len(rejected))
		for _, line := range rejected {
			fmt.Fprintf(&b, "\n  - %s", line)
		}
	}
	return b.String()
}

func (r *Router) reset(id string) string {
	if err := r.store.Delete(id); err != nil {
		r.logger.Error("delete account failed", slog.String("user", id), slog.Any("error", err))
		return fmt.Sprintf("reset failed: %v", err)
	}
	return fmt.Sprintf("account %s reset to defaults", id)
}

func (r *Router) help(topic string) string {
	if topic == "" {
		return usage
	}
	switch verbs[strings.ToLower(topic)] {
	case "set":
		return strings.Join([]string{
			"/set <key = value lines>",
			"one \"key/path = value\" per line; recognized paths:",
			"  - account/inbox/enable (on/off)",
			"  - account/inbox/mode (0/none, 1/cloud, 2/service)",
			"  - account/cloud/token",
			"  - account/service/baseURI",
			"  - account/service/token",
			"  - account/service/assetsDir (must start with /assets/)",
			"  - account/service/notebook",
			"lines may be wrapped in an ASCII-armored PGP message",
			"encrypted with the key from /key",
		}, "\n")
	case "inbox":
		return strings.Join([]string{
			"/inbox on|off",
			"    enable or disable the inbox",
			"/inbox 0|none",
			"    clear the inbox mode",
			"/inbox 1|cloud",
			"    route to the cloud shorthand inbox",
			"/inbox 2|service",
			"    route to the self-hosted kernel inbox",
		}, "\n")
	case "key":
		return "/key\n    show the PGP public key used to encrypt /set payloads"
	case "user":
		return "/user\n    show the current account with secrets redacted"
	case "reset":
		return "/reset\n    delete the current account; all settings return to defaults"
	case "help":
		return usage
	default:
		return fmt.Sprintf("unknown command: %s\n%s", topic, usage)
	}
}

func (r *Router) key() string {
	key, err := r.gateway.PublicKey()
	if err != nil {
		r.logger.Error("read public key failed", slog.Any("error", err))
		return fmt.Sprintf("public key unavailable: %v", err)
	}
	return "PGP public key:\n\n" + key
}

func (r *Router) user(id string) string {
	acc := r.store.Get(id)
	mode := acc.Inbox.Mode.String()
	if acc.Inbox.Mode == account.ModeNone {
		mode = account.Unset
	}
	return strings.Join([]string{
		fmt.Sprintf("- id: %s", acc.ID),
		"- inbox",
		fmt.Sprintf("  - enable: %t", acc.Inbox.Enable),
		fmt.Sprintf("  - mode: %s", mode),
		"- cloud",
		fmt.Sprintf("  - token: %s", account.RedactSecret(acc.Cloud.Token)),
		"- service",
		fmt.Sprintf("  - baseURI: %s", account.RedactURI(acc.Service.BaseURI)),
		fmt.Sprintf("  - token: %s", account.RedactSecret(acc.Service.Token)),
		fmt.Sprintf("  - assetsDir: %s", acc.Service.AssetsDir),
		fmt.Sprintf("  - notebook: %s", account.RedactSecret(acc.Service.Notebook)),
	}, "\n")
}

// inbox handles the quick-switch command: boolean tokens toggle the
// enable flag, mode tokens change the mode, anything else is rejected
// without touching the account.
func (r *Router) inbox(id, token string) string {
	if token == "" {
		return "missing argument\nuse /help inbox for the accepted tokens"
	}
	acc := r.store.Get(id)
	var reply string
	switch {
	case account.IsTruthy(token):
		acc.Inbox.Enable = true
		reply = "inbox: enabled"
	case account.IsFalsy(token):
		acc.Inbox.Enable = false
		reply = "inbox: disabled"
	default:
		mode, ok := account.ParseMode(token)
		if !ok {
			return fmt.Sprintf("unknown argument: %s", token)
		}
		acc.Inbox.Mode = mode
		switch mode {
		case account.ModeNone:
			reply = "inbox mode: " + account.Unset
		default:
			reply = "inbox mode: " + mode.String()
		}
	}
	if err := r.store.Put(acc); err != nil {
		r.logger.Error("persist account failed", slog.String("user", id), slog.Any("error", err))
		return fmt.Sprintf("saving settings failed: %v", err)
	}
	return reply
}

// route is the default path: forward the message content to the
// account's configured inbox.
func (r *Router) route(ctx context.Context, event inbox.Event, segments []inbox.Segment) string {
	acc := r.store.Get(event.UserID)
	if !acc.Inbox.Enable {
		return "inbox is disabled\nenable it with /inbox on"
	}

	client := r.registry.Acquire(acc)
	transfer := inbox.NewTransfer(r.logger, client, r.gateway)
	content, err := transfer.MessageToMarkdown(ctx, acc.Inbox.Mode, segments, event)
	if err != nil {
		r.logger.Warn("transform message failed", slog.String("user", event.UserID), slog.Any("error", err))
		if errors.Is(err, inbox.ErrInboxModeUnset) {
			return "inbox mode is not set\nchoose one with /inbox cloud or /inbox service"
		}
		return fmt.Sprintf("parsing message failed: %v", err)
	}
	if err := inbox.Submit(ctx, client, acc.Inbox.Mode, content); err != nil {
		r.logger.Error("submit to inbox failed",
			slog.String("user", event.UserID),
			slog.String("mode", acc.Inbox.Mode.String()),
			slog.Any("error", err))
		return fmt.Sprintf("delivery to %s inbox failed: %v", acc.Inbox.Mode, err)
	}
	return fmt.Sprintf("added to %s inbox", acc.Inbox.Mode)
}
