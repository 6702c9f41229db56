package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	MySQLDSN string
	RedisURL string
	Port     string

	// Session auth (identity linking itself is external; we only validate
	// the session JWT it issues).
	SessionSecret string

	// Suggestion token keys. Previous stays valid for the TTL window after
	// a rotation so in-flight tokens keep verifying.
	TokenSecret         string
	TokenSecretPrevious string
	TokenTTL            time.Duration

	// Economic policy. Injected once at startup, never mutated.
	VotesRequiredForPayout int
	PayoutLow              float64
	PayoutHigh             float64
	PayoutGamma            float64
	TicketsPerDollar       float64

	// Spam policy.
	SpamMinVotes      int
	SpamBatchInterval time.Duration
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		if def == "" {
			log.Fatalf("missing env %s", key)
		}
		return def
	}
	return v
}

func getint(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil {
		log.Fatalf("env %s: %v", key, err)
	}
	return v
}

func getfloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(getenv(key, strconv.FormatFloat(def, 'f', -1, 64)), 64)
	if err != nil {
		log.Fatalf("env %s: %v", key, err)
	}
	return v
}

func Load() Config {
	return Config{
		MySQLDSN:      getenv("MYSQL_DSN", "shipvotes:shipvotes@tcp(127.0.0.1:3306)/shipvotes?parseTime=true"),
		RedisURL:      getenv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		Port:          getenv("PORT", "8080"),
		SessionSecret: getenv("SESSION_SECRET", "53b1f0da7a4c29e6ad03a1d9b7d24ef0b6c1d8a90f3e4b5c6d7e8f9a0b1c2d3e"),

		TokenSecret:         getenv("TOKEN_SECRET", "4f82ae11c6d95b03e7f2a8d41c0b9e6653d2718fa9c40b5e8d13f76a2c09be44"),
		TokenSecretPrevious: os.Getenv("TOKEN_SECRET_PREVIOUS"),
		TokenTTL:            time.Duration(getint("TOKEN_TTL_SECONDS", 600)) * time.Second,

		VotesRequiredForPayout: getint("VOTES_REQUIRED_FOR_PAYOUT", 20),
		PayoutLow:              getfloat("PAYOUT_RATE_LOW", 2.0),
		PayoutHigh:             getfloat("PAYOUT_RATE_HIGH", 12.0),
		PayoutGamma:            getfloat("PAYOUT_CURVE_GAMMA", 1.75),
		TicketsPerDollar:       getfloat("TICKETS_PER_DOLLAR", 10.0),

		SpamMinVotes:      getint("SPAM_MIN_VOTES", 30),
		SpamBatchInterval: time.Duration(getint("SPAM_BATCH_SECONDS", 900)) * time.Second,
	}
}
