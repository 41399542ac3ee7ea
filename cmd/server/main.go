package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"erp-whatsapp-bridge/internal/actions"
	"erp-whatsapp-bridge/internal/api"
	"erp-whatsapp-bridge/internal/config"
	"erp-whatsapp-bridge/internal/database"
	"erp-whatsapp-bridge/internal/phone"
	"erp-whatsapp-bridge/internal/sender"
	"erp-whatsapp-bridge/internal/store"
	"erp-whatsapp-bridge/internal/webhook"
	"erp-whatsapp-bridge/internal/whatsapp"
	"erp-whatsapp-bridge/internal/workflow"
	"erp-whatsapp-bridge/internal/ws"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}
	database.SyncConfig(db, cfg)

	if cfg.AccessToken == "" || cfg.PhoneNumberID == "" {
		log.Println("Warning: WHATSAPP_TOKEN or PHONE_NUMBER_ID is empty, sends will fail")
	}

	st := store.New(db)
	client := whatsapp.NewClient(cfg)
	snd := sender.New(client, st, phone.Normalizer{DefaultCountryCode: cfg.DefaultCountryCode})

	dispatcher := actions.NewDispatcher(st, snd)
	wf := workflow.New(cfg, st, snd)
	wf.RegisterBuiltins(dispatcher)
	if err := wf.EnsureDefaultActions(); err != nil {
		log.Fatalf("Seeding default button actions failed: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()
	snd.SetNotifier(hub)

	webhookHandler := webhook.NewHandler(cfg, st, dispatcher, client, hub)
	apiHandler := api.NewHandler(cfg, st, snd, client, dispatcher, wf)

	r := gin.Default()
	r.Use(corsMiddleware())

	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleEvent)

	apiHandler.RegisterRoutes(r.Group("/api"))

	r.GET("/ws", func(c *gin.Context) {
		ws.ServeWs(hub, c.Writer, c.Request)
	})

	if err := client.VerifyConnection(); err != nil {
		log.Printf("Warning: WhatsApp connectivity check failed: %v", err)
	} else {
		log.Println("WhatsApp Cloud API connection verified")
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
