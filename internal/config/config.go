package config

import (
	_ "github.com/joho/godotenv/autoload"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
// A .env file in the working directory is picked up automatically.
type Config struct {
	BotToken        string  `envconfig:"BOT_TOKEN" required:"true"`
	AuthorizedUsers []int64 `envconfig:"AUTHORIZED_USERS" required:"true"`
	AdminChatID     int64   `envconfig:"ADMIN_CHAT_ID"`

	DBPath   string `envconfig:"DB_PATH" default:"./data/attendance.db"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	ZoomAccountID    string `envconfig:"ZOOM_ACCOUNT_ID"`
	ZoomClientID     string `envconfig:"ZOOM_CLIENT_ID"`
	ZoomClientSecret string `envconfig:"ZOOM_CLIENT_SECRET"`
	ZoomHostEmail    string `envconfig:"ZOOM_HOST_EMAIL"`

	// Batch label -> Zoom meeting ID. IDs may contain spaces.
	BatchMeetings map[string]string `envconfig:"BATCH_MEETINGS" default:"Batch 1:83527645001,Batch 2:88002278840,Batch 3:81387781923,Batch 4:88554007453"`
	ExcludedNames []string          `envconfig:"EXCLUDED_NAMES" default:"Apoorva Yoga"`
	TZOffsetMin   int               `envconfig:"TZ_OFFSET_MIN" default:"330"` // IST

	CooldownDays int    `envconfig:"COOLDOWN_DAYS" default:"4"`
	DueListLimit int    `envconfig:"DUE_LIST_LIMIT" default:"5"`
	ReportCron   string `envconfig:"REPORT_CRON"` // e.g. "30 21 * * *"; empty disables
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
