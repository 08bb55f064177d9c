package main

import (
	"context"
	"log"
	"net/http"
	"os"

	webAdapter "mrp-engine/internal/adapters/web"
	"mrp-engine/internal/ai"
	"mrp-engine/internal/app"
	"mrp-engine/internal/core"
	"mrp-engine/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	warehouseService := core.NewWarehouseService(pool)
	productService := core.NewProductService(pool)
	bomService := core.NewBOMService(pool)
	stockService := core.NewStockService(pool)
	availabilityService := core.NewAvailabilityService(pool)
	reservationService := core.NewReservationService(pool)
	consumptionService := core.NewConsumptionService(pool)
	productionService := core.NewProductionService(pool)

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Println("Warning: OPENAI_API_KEY is not set")
	}
	agent := ai.NewAgent(apiKey)

	svc := app.NewAppService(pool, warehouseService, productService, bomService,
		stockService, availabilityService, reservationService, consumptionService,
		productionService, agent)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	handler := webAdapter.NewHandler(svc, allowedOrigins)

	log.Printf("server starting on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("server: %v", err)
	}
}
