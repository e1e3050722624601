package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ProjectID             string
	Port                  string
	GeminiAPIKey          string
	GeminiModel           string
	AIAPIURL              string
	AITimeout             time.Duration
	DiscordWebhookURL     string
	GoogleMapsAPIKey      string
	GeocodeCachePath      string
	GeocodeInterval       time.Duration
	VenueSource           string
	Location              *time.Location
	DefaultRadiusMiles    float64
	MaxImageBytes         int64
	AllowOvernightWindows bool
	AllowedOrigins        []string
	EnableH2C             bool
	APIDocsDir            string
	LogLevel              slog.Level
	LogFormat             string
}

func Load() (*Config, error) {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required but not set")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		slog.Info("Defaulting to port", "port", port)
	}

	geminiAPIKey := os.Getenv("GEMINI_API_KEY")
	aiAPIURL := os.Getenv("AI_API_URL")
	if geminiAPIKey == "" && aiAPIURL == "" {
		slog.Warn("Neither GEMINI_API_KEY nor AI_API_URL set, menu extraction is disabled")
	}

	discordWebhookURL := os.Getenv("DISCORD_WEBHOOK_URL")
	if discordWebhookURL == "" {
		slog.Warn("DISCORD_WEBHOOK_URL not set, Discord notifications will be skipped")
	}

	googleMapsAPIKey := os.Getenv("GOOGLE_MAPS_API_KEY")
	if googleMapsAPIKey == "" {
		slog.Warn("GOOGLE_MAPS_API_KEY not set, venues without coordinates will not be geocoded")
	}

	aiTimeout, err := durationEnv("AI_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	geocodeInterval, err := durationEnv("GEOCODE_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	venueSource := stringEnv("VENUE_SOURCE", "denormalized")
	if venueSource != "denormalized" && venueSource != "joined" {
		return nil, fmt.Errorf("invalid VENUE_SOURCE %q: must be denormalized or joined", venueSource)
	}

	tz := stringEnv("TIMEZONE", "America/Los_Angeles")
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	defaultRadius := 10.0
	if v := os.Getenv("DEFAULT_RADIUS_MILES"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid DEFAULT_RADIUS_MILES %q: must be a positive number", v)
		}
		defaultRadius = parsed
	}

	maxImageBytes := int64(10 << 20)
	if v := os.Getenv("MAX_IMAGE_BYTES"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid MAX_IMAGE_BYTES %q: must be a positive integer", v)
		}
		maxImageBytes = parsed
	}

	allowOvernight, err := boolEnv("ALLOW_OVERNIGHT_WINDOWS")
	if err != nil {
		return nil, err
	}
	enableH2C, err := boolEnv("ENABLE_H2C")
	if err != nil {
		return nil, err
	}

	var allowedOrigins []string
	for _, o := range strings.Split(stringEnv("ALLOWED_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowedOrigins = append(allowedOrigins, o)
		}
	}

	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(stringEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return &Config{
		ProjectID:             projectID,
		Port:                  port,
		GeminiAPIKey:          geminiAPIKey,
		GeminiModel:           stringEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		AIAPIURL:              aiAPIURL,
		AITimeout:             aiTimeout,
		DiscordWebhookURL:     discordWebhookURL,
		GoogleMapsAPIKey:      googleMapsAPIKey,
		GeocodeCachePath:      os.Getenv("GEOCODE_CACHE_PATH"),
		GeocodeInterval:       geocodeInterval,
		VenueSource:           venueSource,
		Location:              location,
		DefaultRadiusMiles:    defaultRadius,
		MaxImageBytes:         maxImageBytes,
		AllowOvernightWindows: allowOvernight,
		AllowedOrigins:        allowedOrigins,
		EnableH2C:             enableH2C,
		APIDocsDir:            stringEnv("API_DOCS_DIR", "api"),
		LogLevel:              logLevel,
		LogFormat:             strings.ToLower(os.Getenv("LOG_FORMAT")),
	}, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return d, nil
}

func boolEnv(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
