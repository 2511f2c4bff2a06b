package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	rocketmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/cicekpazari/orderservice/pkg/client"
	"github.com/cicekpazari/orderservice/pkg/config"
	"github.com/cicekpazari/orderservice/pkg/events"
	"github.com/cicekpazari/orderservice/pkg/model"
	"github.com/cicekpazari/orderservice/pkg/repository"
	"github.com/cicekpazari/orderservice/pkg/worker"
)

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := &sync.WaitGroup{}

	cfg := config.Load()

	repo := initDB(cfg)
	rdb := initRedis(cfg)

	gateway := client.NewGatewayClient(cfg.GatewayURL, cfg.GatewayAPIKey, cfg.GatewaySecret, log)
	mailer := client.NewMailerClient(cfg.MailerURL)

	automationCfg := worker.AutomationConfig{
		TokenExpiry: cfg.TokenExpiry,
		Interval:    cfg.RunInterval,
	}

	// Status event publishing is optional: without a broker the engine
	// still runs, downstream consumers just see no events.
	p, err := rocketmq.NewProducer(
		producer.WithNameServer([]string{cfg.MQNameServer}),
		producer.WithGroupName("order_automation_producer_group"),
		producer.WithRetry(2),
	)
	if err != nil {
		log.Warnf("Failed to create MQ producer, status events disabled: %v", err)
	} else if err := p.Start(); err != nil {
		log.Warnf("Failed to start MQ producer, status events disabled: %v", err)
	} else {
		defer p.Shutdown()
		automationCfg.Events = events.NewStatusPublisher(p, log)
	}

	if rdb != nil {
		automationCfg.Lock = worker.NewRunLock(rdb)
	}

	automation := worker.NewAutomationWorker(repo, gateway, mailer, automationCfg, log)
	automation.Start(ctx, wg)

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	// Manual / external-scheduler trigger. The run itself never errors;
	// the summary is the whole contract.
	router.POST("/internal/automation/run", func(c *gin.Context) {
		res := automation.Run(c.Request.Context())
		c.JSON(http.StatusOK, res)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Infof("Order automation service listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	<-sigCh
	log.Info("Gracefully shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP shutdown: %v", err)
	}

	// Notify workers to stop, then wait for them to drain.
	cancel()
	wg.Wait()
}

func initDB(cfg *config.Config) repository.OrderRepo {
	db, err := gorm.Open(mysql.Open(cfg.MySQLDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to mysql: %v", err)
	}
	if err := db.AutoMigrate(&model.Order{}); err != nil {
		log.Fatalf("failed to migrate orders table: %v", err)
	}
	log.Info("connected to mysql")
	return repository.NewOrderRepo(db)
}

func initRedis(cfg *config.Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warnf("failed to connect to redis, run lock disabled: %v", err)
		return nil
	}
	log.Info("connected to redis")
	return rdb
}
