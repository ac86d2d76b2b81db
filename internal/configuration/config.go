package configuration

import (
	"encoding/json"
	"os"
)

type MongoConfig struct {
	Uri                     string `json:"uri"`
	Database                string `json:"database"`
	MessagesCollection      string `json:"messagesCollection"`
	ConversationsCollection string `json:"conversationsCollection"`
	UsersCollection         string `json:"usersCollection"`
	SocketRoute             string `json:"socketRoute"`
}

type AuthConfig struct {
	JwtSecret string `json:"jwt_secret"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	SocketPort     int      `json:"socket_port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type Config struct {
	ChatDatabase MongoConfig  `json:"mongo"`
	Auth         AuthConfig   `json:"auth"`
	Server       ServerConfig `json:"server"`
}

func LoadConfig(configPath string) (*Config, error) {
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	err = json.Unmarshal(file, &config)
	if err != nil {
		return nil, err
	}

	// Secrets come from the environment when set, so the config file can be
	// committed without them.
	if secret := os.Getenv("CHAT_JWT_SECRET"); secret != "" {
		config.Auth.JwtSecret = secret
	}
	if uri := os.Getenv("CHAT_MONGO_URI"); uri != "" {
		config.ChatDatabase.Uri = uri
	}

	return &config, nil
}
