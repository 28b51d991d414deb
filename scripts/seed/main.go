package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/novacriatura/rota/internal/app"
	"github.com/novacriatura/rota/internal/assignments"
	"github.com/novacriatura/rota/internal/calendar"
)

// Seeds a demo history: every roster member draws a card on each of the
// last SEED_WEEKS meetings, oldest first, through the regular allocator.
func main() {
	weeks, err := strconv.Atoi(getenv("SEED_WEEKS", "6"))
	if err != nil || weeks <= 0 {
		log.Fatalf("SEED_WEEKS must be a positive integer")
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	services, err := app.Build(ctx, cfg, app.NewLogger(cfg), app.BuildOptions{})
	if err != nil {
		log.Fatalf("build services: %v", err)
	}
	defer services.Close()

	weekday, err := calendar.ParseWeekday(cfg.ScheduleWeekday)
	if err != nil {
		log.Fatalf("weekday: %v", err)
	}
	next := calendar.FromTime(time.Now()).NextWeekday(weekday)

	members := services.Catalog.Members()
	for i := weeks; i >= 1; i-- {
		date := next.AddDays(-7 * i)
		fmt.Printf("→ Seeding %s...\n", date)
		drawn := 0
		for _, member := range members {
			_, err := services.Assignments.Allocate(ctx, assignments.AllocateRequest{Member: member, Date: date.String()})
			switch {
			case err == nil:
				drawn++
			case errors.Is(err, assignments.ErrAlreadyAssigned), errors.Is(err, assignments.ErrNoCapacityAvailable):
			default:
				log.Fatalf("allocate %s on %s: %v", member, date, err)
			}
		}
		fmt.Printf("  %d cards drawn\n", drawn)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
