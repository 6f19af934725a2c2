package commands

import (
	"github.com/Tinuki562/junior.guru/internal/components/telemetry"
)

type MemberfulConfig struct {
	BaseURL  string `json:"base_url" env:"MEMBERFUL_BASE_URL"`
	APIKey   string `json:"api_key" env:"MEMBERFUL_API_KEY"`
	Email    string `json:"email" env:"MEMBERFUL_EMAIL"`
	Password string `json:"password" env:"MEMBERFUL_PASSWORD"`
}

type Config struct {
	Memberful MemberfulConfig `json:"memberful"`
	// CacheDir is where Memberful responses are cached between runs, without
	// it they are only cached in memory for a single run.
	CacheDir string `json:"cache_dir" env:"JG_CACHE_DIR"`
	Database string `json:"database" env:"JG_DATABASE"`
	Otlp     telemetry.OtlpConfig `json:"otlp"`
}

const defaultDatabase = "juniorguru.db"
