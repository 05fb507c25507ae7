package main

import (
	"log"
	"net/http"

	"taverna-be/internal/api"
	"taverna-be/internal/config"
	"taverna-be/internal/db"
	"taverna-be/internal/logger"
	"taverna-be/internal/metrics"
	"taverna-be/internal/order"
	"taverna-be/internal/payment"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := db.InitDB(cfg)
	defer database.Close()

	mt := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	orderRepo := order.NewRepository(database)
	updater := order.NewStatusUpdater(orderRepo, mt)

	paymentRepo := payment.NewRepository(database)
	manager, err := payment.NewManager(cfg, paymentRepo, updater, mt)
	if err != nil {
		log.Fatalf("failed to build payment manager: %v", err)
	}

	router := api.NewRouter(cfg, manager, orderRepo)

	log.Printf("🚀 server running at http://localhost:%s/", cfg.AppPort)
	log.Fatal(http.ListenAndServe(":"+cfg.AppPort, router))
}
