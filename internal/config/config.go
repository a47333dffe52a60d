package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultDataDir      = "data"
	DefaultKeyFileName  = "pgp-primary.asc"
	DefaultDataFileName = "data.json"

	DefaultKeyName    = "SiYuan Bot"
	DefaultKeyComment = "inbox assistant"

	DefaultCloudAddURL    = "https://ld246.com/apis/siyuan/inbox/addCloudShorthand"
	DefaultCloudUploadURL = "https://ld246.com/apis/siyuan/upload"
	DefaultUserAgentKey   = "User-Agent"
	DefaultUserAgentValue = "SiYuan/3.1.0 https://b3log.org/siyuan"
	DefaultBizTypeKey     = "X-Upload-Biz-Type"
	DefaultBizTypeValue   = "assets"
	DefaultMetaTypeKey    = "X-Upload-Meta-Type"
	DefaultMetaTypeValue  = "0"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Telegram TelegramConfig `toml:"telegram"`
	PGP      PGPConfig      `toml:"pgp"`
	Data     DataConfig     `toml:"data"`
	Cloud    CloudConfig    `toml:"cloud"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
}

// PGPConfig locates the identity file and carries the material used to
// generate it on first run.
type PGPConfig struct {
	KeyFile    string `toml:"key_file"`
	Passphrase string `toml:"passphrase"`
	Name       string `toml:"name"`
	Comment    string `toml:"comment"`
	Email      string `toml:"email"`
}

// DataConfig roots all persistent and cached files under one directory.
type DataConfig struct {
	Dir string `toml:"dir"`
}

// AccountsFile is the path of the JSON account collection document.
func (d DataConfig) AccountsFile() string {
	return filepath.Join(d.Dir, DefaultDataFileName)
}

// AssetsDir is the local cache directory for downloaded media of the
// given kind ("image", "audio", "video").
func (d DataConfig) AssetsDir(kind string) string {
	return filepath.Join(d.Dir, "assets", kind+"s")
}

// CloudConfig holds the ld246 cloud inbox endpoints and the fixed
// header set its upload API expects. Header keys are configurable
// because the upstream contract has changed between releases.
type CloudConfig struct {
	AddURL         string `toml:"add_url"`
	UploadURL      string `toml:"upload_url"`
	UserAgentKey   string `toml:"user_agent_key"`
	UserAgentValue string `toml:"user_agent_value"`
	BizTypeKey     string `toml:"biz_type_key"`
	BizTypeValue   string `toml:"biz_type_value"`
	MetaTypeKey    string `toml:"meta_type_key"`
	MetaTypeValue  string `toml:"meta_type_value"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		PGP: PGPConfig{
			KeyFile: filepath.Join(DefaultDataDir, DefaultKeyFileName),
			Name:    DefaultKeyName,
			Comment: DefaultKeyComment,
		},
		Data: DataConfig{
			Dir: DefaultDataDir,
		},
		Cloud: CloudConfig{
			AddURL:         DefaultCloudAddURL,
			UploadURL:      DefaultCloudUploadURL,
			UserAgentKey:   DefaultUserAgentKey,
			UserAgentValue: DefaultUserAgentValue,
			BizTypeKey:     DefaultBizTypeKey,
			BizTypeValue:   DefaultBizTypeValue,
			MetaTypeKey:    DefaultMetaTypeKey,
			MetaTypeValue:  DefaultMetaTypeValue,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
