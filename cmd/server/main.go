package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yieldengine/internal/config"
	"yieldengine/internal/handler"
	"yieldengine/internal/infrastructure/cache"
	"yieldengine/internal/infrastructure/database"
	"yieldengine/internal/infrastructure/mq"
	"yieldengine/internal/infrastructure/randomness"
	"yieldengine/internal/job"
	"yieldengine/internal/service"
	"yieldengine/pkg/clock"
	"yieldengine/pkg/idgen"
)

func main() {
	cfg := config.LoadConfig("config/config.yaml")

	idgen.Init(1)

	db := database.InitMySQL(&cfg.MySQL)
	redisClient := cache.InitRedis(&cfg.Redis)

	producer := mq.InitKafka(&cfg.Kafka)
	defer producer.Close()

	svcs := service.NewServices(db, redisClient, cfg, clock.System{}, randomness.NewRecentIDSource())
	if err := svcs.Setup.Bootstrap(context.Background()); err != nil {
		log.Fatalf("初始化策略失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := job.NewOutboxSender(db, producer, cfg)
	go outboxSender.Start(ctx)

	reconcileJob := job.NewReconcileJob(db, cfg)
	go reconcileJob.Start(ctx)

	distributionJob := job.NewDistributionJob(svcs.Pool, cfg.Schedule.DistributionCron)
	if err := distributionJob.Start(ctx); err != nil {
		log.Fatalf("启动分配任务失败: %v", err)
	}

	router := handler.SetupRouter(svcs)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
