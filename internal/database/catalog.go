// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shelfscout/shelfscout/internal/metrics"
	"github.com/shelfscout/shelfscout/internal/models"
	"github.com/shelfscout/shelfscout/internal/recommend"
)

// CandidateBooks returns catalog books matching the query, ranked by
// popularity or recency with deterministic tie-breaks.
//
// Category matching happens in Go rather than SQL so the single-letter code
// derivation (including the uncategorized sentinel) has exactly one
// implementation. The SQL ordering lets the scan stop as soon as the limit
// is reached.
func (db *DB) CandidateBooks(ctx context.Context, q recommend.CatalogQuery) ([]recommend.CandidateBook, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, title, classification, stock, sales_count, added_at
		FROM books
	`)

	var conds []string
	var args []interface{}

	if q.InStockOnly {
		conds = append(conds, "stock > 0")
	}
	if len(q.Exclude) > 0 {
		placeholders := make([]string, 0, len(q.Exclude))
		for id := range q.Exclude {
			placeholders = append(placeholders, "?")
			args = append(args, id)
		}
		conds = append(conds, fmt.Sprintf("id NOT IN (%s)", strings.Join(placeholders, ", ")))
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	switch q.OrderBy {
	case recommend.OrderRecency:
		sb.WriteString(" ORDER BY added_at DESC, id ASC")
	default:
		sb.WriteString(" ORDER BY sales_count DESC, added_at DESC, id ASC")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	metrics.RecordDBQuery("candidate_books", "books", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query candidate books: %w", err)
	}
	defer rows.Close()

	var books []recommend.CandidateBook
	for rows.Next() {
		if q.Limit > 0 && len(books) >= q.Limit {
			break
		}

		var (
			id             int64
			title          string
			classification string
			stock          int
			salesCount     int64
			addedAt        time.Time
		)
		if err := rows.Scan(&id, &title, &classification, &stock, &salesCount, &addedAt); err != nil {
			return nil, fmt.Errorf("scan candidate book: %w", err)
		}

		category := recommend.ExtractCategoryCode(classification)
		if q.Category != "" && category != q.Category {
			continue
		}

		books = append(books, recommend.CandidateBook{
			BookID:     id,
			Title:      title,
			Category:   category,
			Stock:      stock,
			Popularity: salesCount,
			AddedAt:    addedAt,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate books: %w", err)
	}

	return books, nil
}

// InsertBook adds a book to the catalog and returns its ID.
func (db *DB) InsertBook(ctx context.Context, b *models.Book) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `
		INSERT INTO books (title, author, classification, stock, sales_count, price_cents)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	var id int64
	start := time.Now()
	err := db.conn.QueryRowContext(ctx, query,
		b.Title, b.Author, b.Classification, b.Stock, b.SalesCount, b.PriceCents).Scan(&id)
	metrics.RecordDBQuery("insert_book", "books", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("insert book: %w", err)
	}

	return id, nil
}

// GetBook returns a single catalog book.
func (db *DB) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `
		SELECT id, title, author, classification, stock, sales_count, price_cents, added_at
		FROM books
		WHERE id = ?
	`

	var b models.Book
	start := time.Now()
	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.Title, &b.Author, &b.Classification,
		&b.Stock, &b.SalesCount, &b.PriceCents, &b.AddedAt)
	metrics.RecordDBQuery("get_book", "books", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}

	return &b, nil
}

// CountBooks returns the number of books in the catalog.
func (db *DB) CountBooks(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var count int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return count, nil
}

// Interface compliance with the recommendation engine's collaborators.
var (
	_ recommend.PurchaseHistorySource = (*DB)(nil)
	_ recommend.CatalogSource         = (*DB)(nil)
)
