// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package database

import (
	"context"
	"fmt"

	"github.com/shelfscout/shelfscout/internal/logging"
	"github.com/shelfscout/shelfscout/internal/models"
)

// SeedSampleData loads a small catalog and order history for development.
// It is a no-op when the books table already has rows.
func (db *DB) SeedSampleData(ctx context.Context) error {
	count, err := db.CountBooks(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		logging.Debug().Int64("books", count).Msg("catalog not empty, skipping seed")
		return nil
	}

	books := []models.Book{
		{Title: "The Art of Computer Programming", Author: "Donald Knuth", Classification: "TP301, O13", Stock: 12, PriceCents: 8999},
		{Title: "Structure and Interpretation of Computer Programs", Author: "Abelson and Sussman", Classification: "TP312", Stock: 8, PriceCents: 5499},
		{Title: "Designing Data-Intensive Applications", Author: "Martin Kleppmann", Classification: "TP311, TP393", Stock: 20, PriceCents: 4999},
		{Title: "A Brief History of Time", Author: "Stephen Hawking", Classification: "P159", Stock: 15, PriceCents: 2299},
		{Title: "The Selfish Gene", Author: "Richard Dawkins", Classification: "Q111", Stock: 10, PriceCents: 1999},
		{Title: "Pride and Prejudice", Author: "Jane Austen", Classification: "I561", Stock: 25, PriceCents: 1299},
		{Title: "One Hundred Years of Solitude", Author: "Gabriel Garcia Marquez", Classification: "I775", Stock: 18, PriceCents: 1599},
		{Title: "Sapiens", Author: "Yuval Noah Harari", Classification: "K02, C91", Stock: 22, PriceCents: 2499},
		{Title: "The Wealth of Nations", Author: "Adam Smith", Classification: "F091", Stock: 9, PriceCents: 1899},
		{Title: "Meditations", Author: "Marcus Aurelius", Classification: "B82", Stock: 14, PriceCents: 999},
		{Title: "Uncatalogued Miscellany", Author: "Various", Classification: "9/9", Stock: 5, PriceCents: 499},
	}

	ids := make([]int64, 0, len(books))
	for i := range books {
		id, err := db.InsertBook(ctx, &books[i])
		if err != nil {
			return fmt.Errorf("seed book %q: %w", books[i].Title, err)
		}
		ids = append(ids, id)
	}

	// A few users with distinct tastes: two technical readers with
	// overlapping history, one fiction reader, one new user with a
	// pending order only.
	orders := []struct {
		userID string
		status models.OrderStatus
		items  []models.OrderItem
	}{
		{"alice", models.OrderStatusCompleted, []models.OrderItem{
			{BookID: ids[0], Quantity: 1},
			{BookID: ids[1], Quantity: 2},
		}},
		{"alice", models.OrderStatusPaid, []models.OrderItem{
			{BookID: ids[2], Quantity: 1},
		}},
		{"bob", models.OrderStatusDelivered, []models.OrderItem{
			{BookID: ids[1], Quantity: 1},
			{BookID: ids[3], Quantity: 1},
		}},
		{"carol", models.OrderStatusCompleted, []models.OrderItem{
			{BookID: ids[5], Quantity: 1},
			{BookID: ids[6], Quantity: 1},
		}},
		{"dave", models.OrderStatusPending, []models.OrderItem{
			{BookID: ids[7], Quantity: 1},
		}},
	}

	for _, o := range orders {
		if _, err := db.CreateOrder(ctx, o.userID, o.status, o.items); err != nil {
			return fmt.Errorf("seed order for %s: %w", o.userID, err)
		}
	}

	logging.Info().
		Int("books", len(books)).
		Int("orders", len(orders)).
		Msg("seeded sample data")

	return nil
}
