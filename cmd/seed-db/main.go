// Command seed-db populates a development database with demo coupons, a
// spread of orders across every fulfillment status, and an admin API key.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-fulfillment/internal/domain/auth"
	"github.com/xenking/order-fulfillment/internal/domain/coupon"
	"github.com/xenking/order-fulfillment/internal/domain/order"
	"github.com/xenking/order-fulfillment/internal/repository"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or FULFILL_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or FULFILL_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("FULFILL_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("FULFILL_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed")
}

func run(ctx context.Context, databaseURL, apiKey, apiKeyPepper string) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return err
	}

	if err := seedCoupons(ctx, repository.NewCouponRepository(pool)); err != nil {
		return err
	}
	if err := seedOrders(ctx, repository.NewOrderRepository(pool)); err != nil {
		return err
	}
	if apiKey != "" {
		if err := seedAPIKey(ctx, repository.NewAPIKeyRepository(pool), apiKey, apiKeyPepper); err != nil {
			return err
		}
	} else {
		slog.Warn("no api key seeded: set --api-key or FULFILL_SEED_API_KEY")
	}
	return nil
}

func seedCoupons(ctx context.Context, repo *repository.CouponRepository) error {
	until := time.Now().AddDate(1, 0, 0)
	coupons := []coupon.Coupon{
		{
			Code: "WELCOME10", Name: "Welcome: 10% off",
			Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(10),
			UserUsageLimit: 1, ValidUntil: &until, Active: true,
		},
		{
			Code: "HALFTIME", Name: "50% off, capped at $25",
			Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(50),
			MaxDiscount: decimal.NewFromInt(25), ValidUntil: &until, Active: true,
		},
		{
			Code: "FIVER", Name: "$5 off orders over $30",
			Type: coupon.DiscountFixed, Value: decimal.NewFromInt(5),
			MinOrderAmount: decimal.NewFromInt(30), ValidUntil: &until, Active: true,
		},
		{
			Code: "LAUNCH100", Name: "Launch week: first 100 orders",
			Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(20),
			UsageLimit: 100, ValidUntil: &until, Active: true,
		},
	}
	for i := range coupons {
		if err := repo.Insert(ctx, &coupons[i]); err != nil {
			return err
		}
	}
	slog.Info("seeded coupons", slog.Int("count", len(coupons)))
	return nil
}

func seedOrders(ctx context.Context, repo *repository.OrderRepository) error {
	statuses := []order.Status{
		order.StatusPending, order.StatusConfirmed, order.StatusPreparing,
		order.StatusReady, order.StatusOutForDelivery, order.StatusDelivered,
		order.StatusCancelled,
	}

	now := time.Now()
	for i, status := range statuses {
		id := uuid.New().String()
		subtotal := decimal.NewFromInt(int64(15 + i*7))
		created := now.Add(-time.Duration(len(statuses)-i) * time.Hour)

		o := &order.Order{
			ID:       id,
			Number:   fmt.Sprintf("ORD-%s-DEMO%02d", created.Format("20060102"), i+1),
			Items: []order.LineItem{
				{
					ProductID: fmt.Sprintf("demo-product-%d", i+1),
					Name:      fmt.Sprintf("Demo Dish %d", i+1),
					UnitPrice: subtotal,
					Quantity:  1,
					Options:   map[string]string{"size": "regular"},
				},
			},
			Subtotal:      subtotal,
			Tax:           decimal.Zero,
			Discount:      decimal.Zero,
			Total:         subtotal,
			Status:        status,
			PaymentMethod: order.PaymentCash,
			PaymentStatus: order.PaymentPending,
			Address:       order.Address{Text: "1 Demo Street"},
			Customer: order.Customer{
				Name:  fmt.Sprintf("Demo Customer %d", i+1),
				Email: fmt.Sprintf("demo%d@example.com", i+1),
				Phone: "+1 555 0100",
			},
			CreatedAt: created,
			UpdatedAt: created,
		}
		if err := repo.Create(ctx, o); err != nil {
			return err
		}
	}
	slog.Info("seeded orders", slog.Int("count", len(statuses)))
	return nil
}

func seedAPIKey(ctx context.Context, repo *repository.APIKeyRepository, key, pepper string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))

	info := &auth.APIKeyInfo{
		ID:      uuid.New().String(),
		KeyHash: hex.EncodeToString(mac.Sum(nil)),
		Name:    "seed-admin",
		Scopes:  []string{auth.ScopeAdmin},
	}
	if err := repo.Insert(ctx, info); err != nil {
		return err
	}
	slog.Info("seeded api key", slog.String("name", info.Name))
	return nil
}
