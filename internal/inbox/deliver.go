package inbox

import (
	"context"
	"fmt"

	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/account"
	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/siyuan"
)

// Submit delivers a rendered Markdown document to the account's
// configured inbox. Cloud mode appends a shorthand entry with the
// default same-day title; Service mode creates (or finds) today's
// daily note and appends the content as a markdown block.
func Submit(ctx context.Context, client *siyuan.Client, mode account.InboxMode, content string) error {
	switch mode {
	case account.ModeNone:
		return ErrInboxModeUnset
	case account.ModeCloud:
		return client.AddCloudShorthand(ctx, content, "")
	case account.ModeService:
		noteID, err := client.CreateDailyNote(ctx)
		if err != nil {
			return fmt.Errorf("create daily note: %w", err)
		}
		if err := client.AppendBlock(ctx, noteID, content, "markdown"); err != nil {
			return fmt.Errorf("append block: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown inbox mode %d", mode)
	}
}
