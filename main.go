package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"EPresence/global"
	"EPresence/logger"
	ka "EPresence/service/dispatcher/kafka"
	"EPresence/service/gateway"
	"EPresence/service/natsx"
	"EPresence/service/presence"
	"EPresence/service/storage"
	redis2 "EPresence/service/storage/redis"
)

func main() {
	cfg := global.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1) 可选外设：redis 镜像 / nats 推送 / kafka 中继
	var mirror presence.Mirror
	if cfg.RedisEnabled {
		err := redis2.InitRedis(redis2.Config{
			Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
		})
		if err != nil {
			logger.Errorf("[main] redis init failed, mirror disabled: %v", err)
		} else {
			mirror = storage.NewMirror(storage.MirrorConfig{NodeID: cfg.NodeID})
			defer func() { _ = redis2.CloseRedis() }()
		}
	}

	var feed presence.FeedPublisher
	if cfg.NatsEnabled {
		nc, err := natsx.NewNatsxClient(natsx.NatsxConfig{
			Servers: cfg.NatsServers, Name: cfg.NatsName,
		})
		if err != nil {
			logger.Errorf("[main] nats init failed, feed disabled: %v", err)
		} else {
			feed = nc
			defer func() { _ = nc.Close() }()
		}
	}

	var relay ka.Relay
	if cfg.KafkaEnabled {
		r, err := ka.NewRelay(ka.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			logger.Errorf("[main] kafka init failed, relay disabled: %v", err)
		} else {
			relay = r
			defer func() { _ = r.Close() }()
		}
	}

	// 2) 在线状态核心（单写协程）
	conns := gateway.NewConnTable(cfg.MaxSendQueue)
	reg := presence.NewRegistry()
	rooms := presence.NewTracker(presence.NewAliasTable())
	router := presence.NewRouter(reg, rooms, conns)
	handler := presence.NewHandler(reg, rooms, router, presence.HandlerConf{
		Mirror: mirror,
		Feed:   feed,
	})
	go handler.Run(ctx)

	// 3) HTTP + WebSocket
	srv := gateway.NewServer(cfg, handler, conns, relay)
	engine := srv.Engine()

	logger.Infof("[main] node=%s listening on :%d ws=%s", cfg.NodeID, cfg.Port, cfg.WSPath)
	if err := engine.Run(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Errorf("[main] server exited: %v", err)
	}
}
