package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env          string
	MirrorPort   string
	API          APIConfig
	WS           WSConfig
	Redis        RedisConfig
	DB           DBConfig
	Desk         DeskConfig
	Notification NotificationConfig
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type WSConfig struct {
	URL            string
	MaxMessageSize int64
	PongWait       time.Duration
	ReconnectMax   time.Duration
}

// RedisConfig vacío (Addr == "") deja el hub en modo local.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DBConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DeskConfig son las credenciales del agente. Si hay Token se usa tal cual;
// si no, se autentica con Email/Password.
type DeskConfig struct {
	Email    string
	Password string
	Token    string
}

type NotificationConfig struct {
	Capacity int
}

func (d DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("sin archivo .env, se usan variables de entorno")
	}
	return FromEnv()
}

// FromEnv arma la configuración solo desde el entorno del proceso.
func FromEnv() *Config {
	return &Config{
		Env:        getEnv("ENV", "development"),
		MirrorPort: getEnv("MIRROR_PORT", "8090"),
		API: APIConfig{
			BaseURL: getEnv("API_BASE_URL", "http://localhost:3000/dev"),
			Timeout: seconds("API_TIMEOUT_SECONDS", 10),
		},
		WS: WSConfig{
			URL:            getEnv("WS_URL", "ws://localhost:3001"),
			MaxMessageSize: int64(getInt("WS_MAX_MESSAGE_SIZE", 65536)),
			PongWait:       seconds("WS_PONG_WAIT_SECONDS", 60),
			ReconnectMax:   seconds("WS_RECONNECT_MAX_SECONDS", 30),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		DB: DBConfig{
			Enabled:  getBool("JOURNAL_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "campusdesk"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnv("DB_NAME", "campusdesk"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Desk: DeskConfig{
			Email:    os.Getenv("DESK_EMAIL"),
			Password: os.Getenv("DESK_PASSWORD"),
			Token:    os.Getenv("DESK_TOKEN"),
		},
		Notification: NotificationConfig{
			Capacity: getInt("NOTIFICATION_CAPACITY", 50),
		},
	}
}

func (c *Config) Production() bool { return c.Env == "production" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("valor inválido, se usa el default", "variable", key, "valor", v, "default", fallback)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func seconds(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Second
}
