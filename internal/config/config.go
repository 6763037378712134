package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port     int    `koanf:"port"`
		DataDir  string `koanf:"data_dir"`
		CORSFrom string `koanf:"cors_from"`
	} `koanf:"server"`

	AI struct {
		APIKey string `koanf:"api_key"`
		Model  string `koanf:"model"`
	} `koanf:"ai"`

	Mail struct {
		Google struct {
			ClientID     string `koanf:"client_id"`
			ClientSecret string `koanf:"client_secret"`
		} `koanf:"google"`
		Microsoft struct {
			ClientID     string `koanf:"client_id"`
			ClientSecret string `koanf:"client_secret"`
		} `koanf:"microsoft"`
	} `koanf:"mail"`

	Render struct {
		BrowserPath string `koanf:"browser_path"`
	} `koanf:"render"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"server.port":     8787,
		"server.data_dir": "./addata",
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		// Try to load from default locations - prioritize addata directory for containerized environments
		defaultPaths := []string{"./addata/applydraft.toml", "./applydraft.toml", "$HOME/.applydraft.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix APPLYDRAFT_
	k.Load(env.Provider("APPLYDRAFT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "APPLYDRAFT_")), "_", ".", -1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// The model key is secret material; allow the conventional variable too.
	if config.AI.APIKey == "" {
		config.AI.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	// Create sample configuration
	sampleConfig := `# ApplyDraft Configuration

[server]
port = 8787
data_dir = "./addata"

[ai]
api_key = "your-anthropic-api-key"
model = "claude-haiku-4-5-20251001"

[mail.google]
client_id = ""
client_secret = ""

[mail.microsoft]
client_id = ""
client_secret = ""

[render]
# Leave empty to auto-detect an installed Chromium or Edge
browser_path = ""
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.AI.APIKey == "" {
		return fmt.Errorf("ai api_key is required (config [ai] section or ANTHROPIC_API_KEY)")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", config.Server.Port)
	}

	if config.Server.DataDir == "" {
		return fmt.Errorf("server data_dir is required")
	}

	return nil
}
