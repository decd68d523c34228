package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"QChat/global"
	"QChat/logger"
	mid "QChat/middleware"
	chatapi "QChat/module/chat"
	"QChat/module/chat/model"
	"QChat/module/chat/seq"
	"QChat/module/chat/store"
	chatsvc "QChat/service/chat"
	"QChat/service/natsx"
	"QChat/service/storage"
	"QChat/tools/security"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := global.Load()
	global.ConfigIds()
	defer logger.Sync()

	ctx := context.Background()

	// storage collaborators
	if err := storage.InitRedis(storage.Config{
		Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
	}); err != nil {
		logger.Errorf("redis init: %v", err)
		os.Exit(1)
	}
	defer func() { _ = storage.CloseRedis() }()

	mongoDB, closeMongo, err := storage.InitMongo(ctx, storage.MongoConfig{
		URI: cfg.MongoURI, Database: cfg.MongoDatabase,
	})
	if err != nil {
		logger.Errorf("mongo init: %v", err)
		os.Exit(1)
	}
	defer closeMongo()

	pgPool, err := storage.InitPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Errorf("postgres init: %v", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	// optional event firehose
	var pub *natsx.Publisher
	if cfg.NatsURL != "" {
		pub, err = natsx.Connect(cfg.NatsURL, cfg.GatewayID)
		if err != nil {
			logger.Warnf("nats disabled: %v", err)
			pub = nil
		}
	}
	defer pub.Close()

	// stores
	allocator := &seq.Allocator{
		Rdb:    storage.GetRedis(),
		Source: &seq.DAO{DB: mongoDB},
	}
	messages := store.NewMessageStore(mongoDB, allocator)
	rooms := store.NewRoomStore(pgPool)

	// gateway
	verifier := security.Verifier{Opts: security.DefaultOptions(cfg.JWTSecret)}
	gateway := chatsvc.NewServer(chatsvc.Config{
		GatewayID:        cfg.GatewayID,
		MaxMessageBytes:  cfg.MaxMessageBytes,
		SendTimeout:      cfg.SendTimeout,
		TypingTTL:        cfg.TypingTTL,
		SessionQueueSize: cfg.SessionQueueSize,
	}, verifier, rooms, messages)
	defer gateway.Close()

	gateway.Presence().SetMirror(func(st model.PresenceState) {
		if err := storage.MirrorPresence(st); err != nil {
			logger.Warnf("presence mirror user=%d: %v", st.UserID, err)
		}
		pub.Publish(natsx.SubjectPresence, st)
	})
	gateway.Router().SetPublisher(func(m *model.Message) {
		pub.Publish(natsx.SubjectMessages, m)
	})

	// HTTP + websocket
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws", gateway.HandleWS)

	api := chatapi.NewAPI(rooms, messages, gateway)
	mid.GET(r, "/api/messaging/rooms", api.HandlerRooms, mid.RouteOpt{IsAuth: true})
	mid.GET(r, "/api/messaging/rooms/:roomId/messages", api.HandlerMessages, mid.RouteOpt{IsAuth: true})
	mid.GET(r, "/api/messaging/rooms/:roomId/members", api.HandlerMembers, mid.RouteOpt{IsAuth: true})
	mid.GET(r, "/api/messaging/rooms/:roomId/typing", api.HandlerTyping, mid.RouteOpt{IsAuth: true})
	mid.GET(r, "/api/messaging/users/online", api.HandlerOnlineUsers, mid.RouteOpt{IsAuth: true})
	mid.POST(r, "/api/messaging/rooms/:roomId/invalidate", api.HandlerInvalidateRoom, mid.RouteOpt{IsAuth: true})

	go func() {
		logger.Infof("[HTTP] gateway %s listening on %s", cfg.GatewayID, cfg.HTTPAddr)
		if err := r.Run(cfg.HTTPAddr); err != nil {
			logger.Errorf("HTTP server failed: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
}
