// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfscout/shelfscout/internal/metrics"
	"github.com/shelfscout/shelfscout/internal/models"
	"github.com/shelfscout/shelfscout/internal/recommend"
)

// countedStatuses is the SQL fragment selecting orders that contribute to
// preference vectors. Pending and cancelled orders are excluded here but
// still count for purchased-book exclusion (see PurchasedBookIDs).
const countedStatuses = `('paid', 'delivered', 'completed')`

// EventsForUser returns the user's counted purchase events: one event per
// order line of a paid, delivered or completed order, with the book's
// classification reduced to a category code.
func (db *DB) EventsForUser(ctx context.Context, userID string) ([]recommend.PurchaseEvent, error) {
	query := `
		SELECT o.user_id, oi.book_id, b.classification, oi.quantity
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		JOIN books b ON b.id = oi.book_id
		WHERE o.user_id = ?
		  AND o.status IN ` + countedStatuses + `
		ORDER BY oi.id
	`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, userID)
	metrics.RecordDBQuery("events_for_user", "orders", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query purchase events: %w", err)
	}
	defer rows.Close()

	var events []recommend.PurchaseEvent
	for rows.Next() {
		var (
			uid            string
			bookID         int64
			classification string
			quantity       int
		)
		if err := rows.Scan(&uid, &bookID, &classification, &quantity); err != nil {
			return nil, fmt.Errorf("scan purchase event: %w", err)
		}

		events = append(events, recommend.PurchaseEvent{
			UserID:   uid,
			BookID:   bookID,
			Category: recommend.ExtractCategoryCode(classification),
			Quantity: quantity,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase events: %w", err)
	}

	return events, nil
}

// UsersWithHistory returns the IDs of all users with at least one counted
// order, sorted ascending for deterministic neighbor scans.
func (db *DB) UsersWithHistory(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT user_id
		FROM orders
		WHERE status IN ` + countedStatuses + `
		ORDER BY user_id
	`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query)
	metrics.RecordDBQuery("users_with_history", "orders", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query users with history: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		users = append(users, uid)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// PurchasedBookIDs returns every book the user has ordered, regardless of
// order status. A book in a pending or cancelled order is still excluded
// from recommendations.
func (db *DB) PurchasedBookIDs(ctx context.Context, userID string) (map[int64]struct{}, error) {
	query := `
		SELECT DISTINCT oi.book_id
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		WHERE o.user_id = ?
	`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, userID)
	metrics.RecordDBQuery("purchased_book_ids", "order_items", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query purchased books: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var bookID int64
		if err := rows.Scan(&bookID); err != nil {
			return nil, fmt.Errorf("scan book id: %w", err)
		}
		ids[bookID] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchased books: %w", err)
	}

	return ids, nil
}

// CreateOrder inserts an order with its items. Orders in a counted status
// immediately bump each book's sales counter and decrement stock.
func (db *DB) CreateOrder(ctx context.Context, userID string, status models.OrderStatus, items []models.OrderItem) (int64, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("invalid order status %q", status)
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("order must have at least one item")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var orderID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, status) VALUES (?, ?) RETURNING id`,
		userID, string(status)).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range items {
		if item.Quantity <= 0 {
			return 0, fmt.Errorf("item quantity must be positive, got %d", item.Quantity)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, book_id, quantity) VALUES (?, ?, ?)`,
			orderID, item.BookID, item.Quantity); err != nil {
			return 0, fmt.Errorf("insert order item: %w", err)
		}

		if status.CountsTowardPreference() {
			if _, err := tx.ExecContext(ctx,
				`UPDATE books SET sales_count = sales_count + ?, stock = stock - ? WHERE id = ?`,
				item.Quantity, item.Quantity, item.BookID); err != nil {
				return 0, fmt.Errorf("update book counters: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit order: %w", err)
	}

	return orderID, nil
}
