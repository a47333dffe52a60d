package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/account"
	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/pgp"
	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/siyuan"
)

var (
	// ErrInboxModeUnset means content routing was attempted for an
	// account whose mode is still None; callers guard against this
	// earlier in the flow.
	ErrInboxModeUnset = errors.New("inbox mode not set")
)

// unicodeEmojiBase is the first emoji id rendered as a literal rune;
// ids below it are platform emoji rendered as short-codes.
const unicodeEmojiBase = 8192

// Transfer renders one message's segments to Markdown, dumping media
// to the account's remote store on the way.
type Transfer struct {
	client  *siyuan.Client
	gateway *pgp.Gateway
	logger  *slog.Logger
}

func NewTransfer(log *slog.Logger, client *siyuan.Client, gateway *pgp.Gateway) *Transfer {
	if log == nil {
		log = slog.Default()
	}
	return &Transfer{
		client:  client,
		gateway: gateway,
		logger:  log.With(slog.String("service", "transfer")),
	}
}

// MessageToMarkdown converts the ordered segment list to one Markdown
// document. Media segments are dumped concurrently first so rendering
// sees the rewritten URLs; a failed dump degrades to the source URL.
func (t *Transfer) MessageToMarkdown(ctx context.Context, mode account.InboxMode, segments []Segment, event Event) (string, error) {
	switch mode {
	case account.ModeNone:
		return "", ErrInboxModeUnset
	case account.ModeCloud, account.ModeService:
		// handled below
	default:
		return "", fmt.Errorf("unknown inbox mode %d", mode)
	}

	t.dump(ctx, mode, segments)
	return t.render(segments, event)
}

// dump fans out one task per media segment and joins them all before
// returning. Each task owns only its segment; there is no other shared
// mutable state.
func (t *Transfer) dump(ctx context.Context, mode account.InboxMode, segments []Segment) {
	var wg sync.WaitGroup
	for i := range segments {
		var kind siyuan.FileKind
		switch segments[i].Type {
		case SegmentImage:
			kind = siyuan.KindImage
		case SegmentAudio:
			kind = siyuan.KindAudio
		case SegmentVideo:
			kind = siyuan.KindVideo
		default:
			continue
		}
		wg.Add(1)
		go func(seg *Segment, kind siyuan.FileKind) {
			defer wg.Done()
			t.dumpSegment(ctx, mode, seg, kind)
		}(&segments[i], kind)
	}
	wg.Wait()
}

// dumpSegment downloads the segment's source and uploads it to the
// mode's backend, rewriting the segment's name and URL on success.
// Failure keeps the original URL and only logs a warning: a broken
// dump must not lose the whole message.
func (t *Transfer) dumpSegment(ctx context.Context, mode account.InboxMode, seg *Segment, kind siyuan.FileKind) {
	path, name, err := t.client.Download(ctx, seg.URL, kind, seg.File)
	if err != nil {
		t.logger.Warn("media dump failed",
			slog.String("url", seg.URL), slog.Any("error", err))
		return
	}

	var result *siyuan.UploadResult
	switch mode {
	case account.ModeService:
		result, err = t.client.ServiceUpload(ctx, []siyuan.UploadFile{{Name: name, Path: path}}, t.client.Account().Service.AssetsDir)
	default:
		result, err = t.client.CloudUpload(ctx, []siyuan.UploadFile{{Name: name, Path: path}})
	}
	if err != nil {
		t.logger.Warn("media upload failed",
			slog.String("name", name), slog.Any("error", err))
		return
	}
	uploaded, ok := result.SuccMap[name]
	if !ok {
		t.logger.Warn("media missing from upload result", slog.String("name", name))
		return
	}
	seg.File = name
	seg.URL = uploaded
}

// render maps segments to fragments in original order and concatenates
// them with no separator; each renderer owns its own whitespace.
func (t *Transfer) render(segments []Segment, event Event) (string, error) {
	var b strings.Builder
	for _, seg := range segments {
		switch seg.Type {
		case SegmentText:
			text, err := t.text(seg.Text)
			if err != nil {
				return "", err
			}
			b.WriteString(text)
		case SegmentImage:
			fmt.Fprintf(&b, "![%s](%s)", seg.File, seg.URL)
		case SegmentAudio:
			fmt.Fprintf(&b, `<audio controls="controls" src="%s"></audio>`, seg.URL)
		case SegmentVideo:
			fmt.Fprintf(&b, `<video controls="controls" src="%s"></video>`, seg.URL)
		case SegmentEmoji:
			b.WriteString(emoji(seg.EmojiID))
		case SegmentMentionUser:
			fmt.Fprintf(&b, "<u>@%s&lt;%s&gt;</u>", event.MentionName(seg.UserID), seg.UserID)
		case SegmentMentionChannel:
			fmt.Fprintf(&b, "<kbd>#&lt;%s&gt;</kbd>", seg.ChannelID)
		default:
			// unrecognized segment kinds drop out of the document
		}
	}
	return b.String(), nil
}

// text decrypts inline armored blocks, then wraps bare absolute URLs
// in Markdown link syntax.
func (t *Transfer) text(raw string) (string, error) {
	text := raw
	if t.gateway != nil {
		var err error
		text, err = t.gateway.DecryptAll(raw)
		if err != nil {
			return "", err
		}
	}
	return linkify(text), nil
}

// emoji renders ids at or above the Unicode base as the literal rune
// and everything below as a platform short-code.
func emoji(id int) string {
	if id >= unicodeEmojiBase {
		return string(rune(id))
	}
	return fmt.Sprintf(":qq-gif/s%d:", id)
}

// hyperlinkToken reports whether a whole whitespace-delimited token is
// an absolute URL.
func hyperlinkToken(token string) bool {
	scheme, rest, ok := strings.Cut(token, "://")
	if !ok || scheme == "" || rest == "" {
		return false
	}
	for _, r := range scheme {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// linkify rewrites every URL token as "[url](<url>)". Only tokens that
// are whole whitespace-delimited words qualify; URLs embedded in a
// larger word stay untouched.
func linkify(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		token := text[start:end]
		if hyperlinkToken(token) {
			b.WriteString("[" + token + "](<" + token + ">)")
		} else {
			b.WriteString(token)
		}
		start = -1
	}
	for i, r := range text {
		if unicode.IsSpace(r) {
			flush(i)
			b.WriteRune(r)
		} else if start < 0 {
			start = i
		}
	}
	flush(len(text))
	return b.String()
}
