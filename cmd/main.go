package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/git-krishnabisht/vaatsip-sub000/internal/auth"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/config"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/delivery"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/infrastructure/kafka"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/infrastructure/redis"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/registry"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/relay"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/store"

	"github.com/joho/godotenv"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Application recovered from panic: %v", r)
			os.Exit(1)
		}
	}()

	_ = godotenv.Load()

	cfg := config.LoadConfig()

	log.Printf("Starting Vaatsip Realtime Server")
	log.Printf("Environment: %s", cfg.Environment)
	log.Printf("Port: %s", cfg.Port)
	log.Printf("Database: %s", cfg.DatabasePath)
	log.Printf("Redis: %s:%s", cfg.RedisHost, cfg.RedisPort)
	log.Printf("Kafka Brokers: %v", cfg.KafkaBrokers)

	messageStore, err := store.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open message store: %v", err)
	}

	redisClient := redis.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)

	ctx := context.Background()
	if err := redisClient.Ping(ctx); err != nil {
		log.Printf("Warning: Redis connection failed: %v", err)
	} else {
		log.Println("Redis connection successful")
	}

	kafkaBroker := strings.Join(cfg.KafkaBrokers, ",")
	kafkaProducer := kafka.NewKafkaProducer(kafkaBroker)

	reg := registry.New()
	rel := relay.New(messageStore, reg, kafkaProducer)
	verifier := auth.NewVerifier(cfg.JWTSecret)

	server := delivery.NewServer(cfg, verifier, messageStore, reg, rel, redisClient)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutting down...")
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("Error closing Kafka producer: %v", err)
		}
		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
		if err := messageStore.Close(); err != nil {
			log.Printf("Error closing message store: %v", err)
		}
		os.Exit(0)
	}()

	// Start server (blocking)
	log.Fatal(server.Start())
}
