package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"coverage-rag-be/internal/config"

	"github.com/fatih/color"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Environment doctor. Checks every external dependency the server needs and
// prints a status line per check so a broken deployment is obvious before
// the first request.
func main() {
	cfg := config.Load()

	ok := color.New(color.FgGreen).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()
	fail := color.New(color.FgRed).SprintFunc()

	fmt.Println("Checking environment...")
	fmt.Println()

	failures := 0

	// Database (required)
	if cfg.Database.Connection == "" {
		fmt.Printf("%s DB_CONNECTION_STRING is not set\n", fail("[FAIL]"))
		failures++
	} else if err := checkDatabase(cfg.Database.Connection); err != nil {
		fmt.Printf("%s database unreachable: %v\n", fail("[FAIL]"), err)
		failures++
	} else {
		fmt.Printf("%s database connection\n", ok("[ OK ]"))
	}

	// Ollama (required for local search embeddings and the default LLM)
	if err := checkHTTP(cfg.Ai.OllamaBaseURL + "/api/tags"); err != nil {
		if cfg.Ai.LLMProvider == "ollama" || cfg.Search.Provider == "local" {
			fmt.Printf("%s ollama unreachable at %s: %v\n", fail("[FAIL]"), cfg.Ai.OllamaBaseURL, err)
			failures++
		} else {
			fmt.Printf("%s ollama unreachable (unused with current providers)\n", warn("[WARN]"))
		}
	} else {
		fmt.Printf("%s ollama at %s\n", ok("[ OK ]"), cfg.Ai.OllamaBaseURL)
	}

	// Remote search backend (required only when SEARCH_PROVIDER=remote)
	if cfg.Search.Provider == "remote" {
		if err := checkHTTP(cfg.Search.BaseURL); err != nil {
			fmt.Printf("%s search backend unreachable at %s: %v\n", fail("[FAIL]"), cfg.Search.BaseURL, err)
			failures++
		} else {
			fmt.Printf("%s search backend at %s\n", ok("[ OK ]"), cfg.Search.BaseURL)
		}
	}

	// HuggingFace key (required only when LLM_PROVIDER=huggingface)
	if cfg.Ai.LLMProvider == "huggingface" && cfg.Ai.HuggingFaceKey == "" {
		fmt.Printf("%s HUGGINGFACE_API_KEY is not set\n", fail("[FAIL]"))
		failures++
	}

	// NATS (optional)
	if nc, err := nats.Connect(cfg.App.NatsURL, nats.Timeout(3*time.Second)); err != nil {
		fmt.Printf("%s nats unreachable at %s (events stay in-process)\n", warn("[WARN]"), cfg.App.NatsURL)
	} else {
		nc.Close()
		fmt.Printf("%s nats at %s\n", ok("[ OK ]"), cfg.App.NatsURL)
	}

	// Redis (optional unless SESSION_LOCK_BACKEND=redis)
	if err := checkRedis(cfg.App.RedisURL); err != nil {
		if cfg.App.SessionLockBackend == "redis" {
			fmt.Printf("%s redis unreachable at %s: %v\n", fail("[FAIL]"), cfg.App.RedisURL, err)
			failures++
		} else {
			fmt.Printf("%s redis unreachable (in-memory session lock in use)\n", warn("[WARN]"))
		}
	} else {
		fmt.Printf("%s redis at %s\n", ok("[ OK ]"), cfg.App.RedisURL)
	}

	fmt.Println()
	if failures > 0 {
		fmt.Printf("%s %d check(s) failed\n", fail("[FAIL]"), failures)
		os.Exit(1)
	}
	fmt.Printf("%s environment looks good\n", ok("[ OK ]"))
}

func checkDatabase(dsn string) error {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return sqlDB.Ping()
}

func checkHTTP(url string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func checkRedis(url string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return err
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}
