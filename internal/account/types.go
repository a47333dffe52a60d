// Package account holds the per-user inbox configuration model, its
// JSON file store, and the "key/path = value" patch protocol.
package account

import "strings"

// InboxMode selects where forwarded messages land.
type InboxMode int

const (
	ModeNone    InboxMode = 0 // no inbox configured
	ModeCloud   InboxMode = 1 // ld246 cloud shorthand inbox
	ModeService InboxMode = 2 // self-hosted SiYuan kernel inbox
)

// String returns the canonical token for the mode.
func (m InboxMode) String() string {
	switch m {
	case ModeCloud:
		return "cloud"
	case ModeService:
		return "service"
	default:
		return "none"
	}
}

const (
	// AssetsDirPrefix is the mandatory prefix of a service assets
	// directory; paths outside of it are rejected by the patcher.
	AssetsDirPrefix = "/assets/"

	// DefaultAssetsDir is where service-mode uploads land unless the
	// account overrides it.
	DefaultAssetsDir = "/assets/inbox/"
)

// Inbox carries the routing switch for one account.
type Inbox struct {
	Enable bool      `json:"enable"`
	Mode   InboxMode `json:"mode"`
}

// Cloud holds the ld246 cloud inbox credentials.
type Cloud struct {
	Token string `json:"token"`
}

// Service holds the self-hosted SiYuan kernel connection settings.
type Service struct {
	BaseURI   string `json:"baseURI"`
	Token     string `json:"token"`
	AssetsDir string `json:"assets"`
	Notebook  string `json:"notebook"`
}

// Account is one user's full configuration record. ID is immutable
// once created.
type Account struct {
	ID      string  `json:"id"`
	Inbox   Inbox   `json:"inbox"`
	Cloud   Cloud   `json:"cloud"`
	Service Service `json:"service"`
}

// New returns a default-valued account for the given id.
func New(id string) Account {
	return Account{
		ID: id,
		Service: Service{
			AssetsDir: DefaultAssetsDir,
		},
	}
}

// ParseMode maps a mode token (numeric or named, including locale
// synonyms) to an InboxMode. The second result is false for unknown
// tokens.
func ParseMode(token string) (InboxMode, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "0", "none", "无", "未设置":
		return ModeNone, true
	case "1", "cloud", "云", "云服务", "链滴", "云收集箱":
		return ModeCloud, true
	case "2", "service", "思源", "内核", "服务", "思源内核", "思源服务", "内核服务", "思源收集箱":
		return ModeService, true
	}
	return ModeNone, false
}

// IsTruthy reports whether the token is one of the recognized "on"
// spellings. Everything else counts as false for boolean fields.
func IsTruthy(token string) bool {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "enable", "true", "on", "开启", "启用":
		return true
	}
	return false
}

// IsFalsy reports whether the token is one of the recognized "off"
// spellings. Used by the command layer, which distinguishes an explicit
// disable from an unknown token.
func IsFalsy(token string) bool {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "disable", "false", "off", "关闭", "禁用":
		return true
	}
	return false
}
