package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"guildchat-backend/internal/database"
	"guildchat-backend/internal/handlers"
	"guildchat-backend/internal/hub"
	"guildchat-backend/internal/jwt"
	"guildchat-backend/internal/keyValue"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/permissions"
	"guildchat-backend/internal/presence"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"guildchat-backend/internal/snowflake"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupLogger(cfg *models.ConfigFile) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()

	if cfg.LogToFile {
		config.OutputPaths = []string{"app.log", "stdout"}
	} else {
		config.OutputPaths = []string{"stdout"}
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	config.Level = level

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	sugar := logger.Sugar()
	defer logger.Sync()

	return sugar, nil
}

func readConfigFile() (*models.ConfigFile, error) {
	var cfg models.ConfigFile

	configFile, err := os.Open("config.json")
	if err != nil {
		return nil, err
	}
	defer configFile.Close()

	bytes, err := io.ReadAll(configFile)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(bytes, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setupRedis(cfg *models.ConfigFile) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	err := rdb.Ping(context.Background()).Err()
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func main() {
	fmt.Println("Reading config file...")
	cfg, err := readConfigFile()
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("Setting up logger...")
	sugar, err := setupLogger(cfg)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("Connecting to database...")
	db, err := database.Setup(cfg)
	if err != nil {
		sugar.Fatal(err)
	}

	var redisClient *redis.Client
	if !cfg.SelfContained {
		fmt.Println("Connecting to redis...")
		redisClient, err = setupRedis(cfg)
		if err != nil {
			sugar.Fatal(err)
		}
	}

	err = snowflake.Setup(cfg.SnowflakeWorkerID)
	if err != nil {
		sugar.Fatal(err)
	}

	isHttps := (cfg.TlsCert != "" && cfg.TlsKey != "")

	jwt.Setup(cfg.JwtSecret, isHttps)
	keyValue.Setup(sugar, redisClient, cfg.SelfContained)

	tracker := presence.NewLocalTracker()
	hub.Setup(sugar, redisClient, db, tracker, cfg.SelfContained)

	permissions.Setup(sugar, db)
	handlers.Setup(sugar, db)

	var httpProtocol string
	if isHttps {
		httpProtocol = "https"
	} else {
		httpProtocol = "http"
	}

	fmt.Printf("Server is running on %s://%s:%s\n", httpProtocol, cfg.Address, cfg.Port)

	err = handlers.Serve(isHttps, cfg)
	if err != nil {
		sugar.Fatal(err)
	}
}
