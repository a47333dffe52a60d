// Package inbox converts platform message segments into one Markdown
// document and delivers it to the account's configured inbox.
package inbox

// SegmentType identifies the kind of one platform message segment.
type SegmentType string

const (
	SegmentText           SegmentType = "text"
	SegmentImage          SegmentType = "image"
	SegmentAudio          SegmentType = "audio"
	SegmentVideo          SegmentType = "video"
	SegmentEmoji          SegmentType = "emoji"
	SegmentMentionUser    SegmentType = "mention_user"
	SegmentMentionChannel SegmentType = "mention_channel"
)

// Segment is one platform-neutral piece of an inbound message. Media
// segments carry the source file name and URL; the dump phase rewrites
// both to the uploaded location.
type Segment struct {
	Type SegmentType

	Text string // text segments

	File string // media: file name
	URL  string // media: source, then uploaded, URL

	EmojiID int // emoji: platform code point or sticker id

	UserID    string // mention_user
	ChannelID string // mention_channel
}

// Mention resolves a mentioned user id to a display name.
type Mention struct {
	ID   string
	Name string
}

// Event is the message context the transformer needs from the owning
// platform event.
type Event struct {
	UserID   string
	Mentions []Mention
}

// MentionName returns the display name for the id, or empty when the
// event context cannot resolve it.
func (e Event) MentionName(id string) string {
	for _, m := range e.Mentions {
		if m.ID == id {
			return m.Name
		}
	}
	return ""
}
