package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr          string
	RequestTimeout    time.Duration
	LogLevel          string
	LogFormat         string
	UserAgent         string
	CatalogAPIURL     string
	JikanURL          string
	JikanRPS          float64
	RedisURL          string
	GenreCacheTTL     time.Duration
	AbbreviationsFile string
	SearchDebounce    time.Duration
	ListingDebounce   time.Duration
	RateLimitRPS      float64
	RateLimitBurst    int
	ImageProxyHosts   []string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8090"),
		RequestTimeout:    time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:         getEnv("USER_AGENT", "animestream-catalog/1.0"),
		CatalogAPIURL:     normalizeBaseURL(getEnv("CATALOG_API_URL", "")),
		JikanURL:          normalizeBaseURL(getEnv("JIKAN_URL", "https://api.jikan.moe/v4")),
		JikanRPS:          getEnvFloat("JIKAN_RPS", 3),
		RedisURL:          getEnv("REDIS_URL", ""),
		GenreCacheTTL:     time.Duration(getEnvInt("GENRE_CACHE_TTL_HOURS", 24)) * time.Hour,
		AbbreviationsFile: getEnv("ABBREVIATIONS_FILE", ""),
		SearchDebounce:    time.Duration(getEnvInt("SEARCH_DEBOUNCE_MS", 500)) * time.Millisecond,
		ListingDebounce:   time.Duration(getEnvInt("LISTING_DEBOUNCE_MS", 300)) * time.Millisecond,
		RateLimitRPS:      getEnvFloat("HTTP_RATE_LIMIT_RPS", 20),
		RateLimitBurst:    getEnvInt("HTTP_RATE_LIMIT_BURST", 40),
		ImageProxyHosts:   getEnvList("IMAGE_PROXY_HOSTS"),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if value := strings.ToLower(strings.TrimSpace(part)); value != "" {
			out = append(out, value)
		}
	}
	return out
}

func normalizeBaseURL(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		value = "http://" + value
	}
	return strings.TrimRight(value, "/")
}
