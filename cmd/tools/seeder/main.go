package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// Seeds a development database with the starter catalog and a couple of
// promo codes. Safe to run repeatedly.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedProducts(db)
	seedPromoCodes(db)

	log.Println("Seeding completed successfully!")
}

func seedProducts(db *sql.DB) {
	products := []struct {
		sku        string
		name       string
		desc       string
		priceCents int64
		imageURL   string
		category   string
		coaURL     string
		stock      sql.NullInt64
		status     string
	}{
		{"recovery-oil-30", "Recovery Oil 30ml", "Full-spectrum recovery oil, 1000mg.", 4999, "/images/recovery-oil-30.jpg", "oils", "/coa/recovery-oil-30.pdf", sql.NullInt64{Int64: 50, Valid: true}, "active"},
		{"recovery-oil-60", "Recovery Oil 60ml", "Full-spectrum recovery oil, 2000mg.", 8999, "/images/recovery-oil-60.jpg", "oils", "/coa/recovery-oil-60.pdf", sql.NullInt64{Int64: 30, Valid: true}, "active"},
		{"relief-balm-50", "Relief Balm 50g", "Cooling topical balm with menthol.", 3499, "/images/relief-balm-50.jpg", "topicals", "/coa/relief-balm-50.pdf", sql.NullInt64{}, "active"},
		{"sleep-caps-30", "Sleep Capsules", "30-count capsules with CBN blend.", 4499, "/images/sleep-caps-30.jpg", "capsules", "/coa/sleep-caps-30.pdf", sql.NullInt64{Int64: 0, Valid: true}, "coming_soon"},
	}

	for _, p := range products {
		_, err := db.Exec(`
			INSERT INTO products (sku, name, description, price_cents, image_url, category, coa_url, stock, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (sku) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				price_cents = EXCLUDED.price_cents,
				image_url = EXCLUDED.image_url,
				category = EXCLUDED.category,
				coa_url = EXCLUDED.coa_url,
				stock = EXCLUDED.stock,
				status = EXCLUDED.status,
				updated_at = now()
		`, p.sku, p.name, p.desc, p.priceCents, p.imageURL, p.category, p.coaURL, p.stock, p.status)
		if err != nil {
			log.Fatalf("Failed to seed product %s: %v", p.sku, err)
		}
	}
	log.Printf("Seeded %d products", len(products))
}

func seedPromoCodes(db *sql.DB) {
	promos := []struct {
		code        string
		kind        string
		percentBps  int32
		amountCents int64
		description string
		active      bool
	}{
		{"WELCOME10", "percentage", 1000, 0, "10% off your first order", true},
		{"SAVE15", "fixed", 0, 1500, "$15 off", true},
		{"LAUNCH20", "percentage", 2000, 0, "Launch week special", false},
	}

	for _, p := range promos {
		_, err := db.Exec(`
			INSERT INTO promo_codes (code, kind, percent_bps, amount_cents, description, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (code) DO UPDATE SET
				kind = EXCLUDED.kind,
				percent_bps = EXCLUDED.percent_bps,
				amount_cents = EXCLUDED.amount_cents,
				description = EXCLUDED.description,
				is_active = EXCLUDED.is_active,
				updated_at = now()
		`, p.code, p.kind, p.percentBps, p.amountCents, p.description, p.active)
		if err != nil {
			log.Fatalf("Failed to seed promo code %s: %v", p.code, err)
		}
	}
	log.Printf("Seeded %d promo codes", len(promos))
}
