// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package models

import (
	"time"
)

// OrderStatus is the lifecycle state of an order. Only orders that
// represent committed purchases (paid, delivered, completed) count toward
// a user's taste profile; pending and cancelled orders do not.
type OrderStatus string

// Order lifecycle states.
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// CountsTowardPreference reports whether orders in this status contribute
// to preference vectors and purchase statistics.
func (s OrderStatus) CountsTowardPreference() bool {
	switch s {
	case OrderStatusPaid, OrderStatusDelivered, OrderStatusCompleted:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusDelivered,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Book is a catalog entry.
//
// Classification holds the raw classification string (e.g. "TP312, O13");
// the recommendation engine reduces it to a single-letter category code.
// SalesCount is the denormalized popularity counter updated as orders
// complete.
type Book struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Author         string    `json:"author"`
	Classification string    `json:"classification"`
	Stock          int       `json:"stock"`
	SalesCount     int64     `json:"sales_count"`
	PriceCents     int64     `json:"price_cents"`
	AddedAt        time.Time `json:"added_at"`
}

// Order is a purchase order header.
type Order struct {
	ID        int64       `json:"id"`
	UserID    string      `json:"user_id"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	Items     []OrderItem `json:"items,omitempty"`
}

// OrderItem is a single line of an order.
type OrderItem struct {
	ID       int64 `json:"id"`
	OrderID  int64 `json:"order_id"`
	BookID   int64 `json:"book_id"`
	Quantity int   `json:"quantity"`
}
