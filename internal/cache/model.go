// Package cache implements the marketplace cache core: the feed cache
// with predictive prefetch, the proactive warmer, the write-behind view
// counter buffer, the offer expiry scheduler, and the composable caching
// policies layered over loader functions.
//
// Every component delegates atomicity to the backing store's native
// primitives and fails open: a store failure degrades to a miss or no-op,
// never to an error on the request path.
package cache

import "time"

// ProductSummary is the cached listing representation used in feed and
// search pages. Explicit field list; cached payloads never mirror ORM
// models directly.
type ProductSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	SellerID  string    `json:"sellerId"`
	Status    string    `json:"status"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Lat       float64   `json:"lat,omitempty"`
	Lng       float64   `json:"lng,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// FeedPage is one cached page of feed results.
type FeedPage struct {
	Items   []ProductSummary `json:"items"`
	Page    int              `json:"page"`
	Limit   int              `json:"limit"`
	Total   int              `json:"total"`
	HasMore bool             `json:"hasMore"`
}

// SellerProfile is the cached profile payload for active sellers.
type SellerProfile struct {
	ID           string  `json:"id"`
	DisplayName  string  `json:"displayName"`
	Rating       float64 `json:"rating"`
	ProductCount int     `json:"productCount"`
}

// CategorySummary is the cached popular-category payload.
type CategorySummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProductCount int    `json:"productCount"`
}

// ExpiringOffer pairs a tracked offer with its expiry time.
type ExpiringOffer struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expiresAt"`
}
