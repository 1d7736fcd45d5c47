// Package keys builds canonical cache keys for every namespace the cache
// layer owns. Key construction is pure and deterministic: identical
// logical queries always produce the same key regardless of argument
// order, which is what makes filter-driven lookups cacheable at all.
//
// The namespace prefixes are a contract with external consumers that
// invalidate by pattern or read another component's keys directly; see the
// *Pattern helpers before changing any of them.
package keys

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Namespace prefixes. Stable; consumers depend on these.
const (
	NamespaceUser     = "user:"
	NamespaceProduct  = "product:"
	NamespaceFeed     = "feed:"
	NamespaceStream   = "stream:"
	NamespaceOffer    = "offer:"
	NamespaceSearch   = "search:"
	NamespaceTrending = "trending:"
	NamespacePresence = "presence:"
	NamespaceTyping   = "typing:"
	NamespaceUnread   = "unread:"
)

// geoPrecision is the number of decimal places coordinates are rounded to
// before hashing. Two decimals is roughly a 1.1km bucket: nearby queries
// intentionally share cache entries at the cost of some locality
// precision.
const geoPrecision = 2

// digestLength is the fixed width of filter digests in hex characters.
const digestLength = 16

// ============================================================================
// ENTITY KEYS
// ============================================================================

// User returns the cache key for a user profile.
func User(userID string) string {
	return NamespaceUser + userID
}

// Product returns the cache key for a product detail payload.
func Product(productID string) string {
	return NamespaceProduct + productID
}

// ProductViewBuffer returns the write-behind buffer key for a product's
// pending view-count delta.
func ProductViewBuffer(productID string) string {
	return NamespaceProduct + "views:pending:" + productID
}

// ProductViewBufferPattern matches every pending view counter.
func ProductViewBufferPattern() string {
	return NamespaceProduct + "views:pending:*"
}

// ProductIDFromViewBuffer recovers the product ID from a buffer key. The
// second return is false when the key is not a view-buffer key.
func ProductIDFromViewBuffer(key string) (string, bool) {
	const prefix = NamespaceProduct + "views:pending:"
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return "", false
	}
	return key[len(prefix):], true
}

// Stream returns the cache key for stream metadata.
func Stream(streamID string) string {
	return NamespaceStream + streamID
}

// StreamViewers returns the sorted-set key holding a stream's live
// viewers, scored by join time.
func StreamViewers(streamID string) string {
	return NamespaceStream + "viewers:" + streamID
}

// ============================================================================
// FEED KEYS
// ============================================================================

// DiscoverFeed returns the key for a geo-bucketed discover feed page.
func DiscoverFeed(lat, lng float64, filters map[string]any, page, limit int) string {
	return fmt.Sprintf("%sdiscover:%s:%s:%d:%d",
		NamespaceFeed, GeoBucket(lat, lng), FilterDigest(filters), page, limit)
}

// CommunityFeed returns the key for a community feed page.
func CommunityFeed(communityID string, filters map[string]any, page, limit int) string {
	return fmt.Sprintf("%scommunity:%s:%s:%d:%d",
		NamespaceFeed, communityID, FilterDigest(filters), page, limit)
}

// FeedPattern matches every feed key across both feed namespaces.
func FeedPattern() string {
	return NamespaceFeed + "*"
}

// ============================================================================
// SEARCH AND TRENDING KEYS
// ============================================================================

// SearchResults returns the key for a cached search result page.
func SearchResults(query string, filters map[string]any, page, limit int) string {
	merged := make(map[string]any, len(filters)+1)
	for k, v := range filters {
		merged[k] = v
	}
	merged["q"] = query
	return fmt.Sprintf("%sresults:%s:%d:%d", NamespaceSearch, FilterDigest(merged), page, limit)
}

// TrendingTerms returns the key for the trending search terms payload.
func TrendingTerms() string {
	return NamespaceTrending + "terms"
}

// PopularCategories returns the key for the popular categories payload.
func PopularCategories() string {
	return NamespaceTrending + "categories"
}

// ============================================================================
// OFFER EXPIRY KEYS
// ============================================================================

// OfferExpiryIndex is the sorted-set key holding all offers pending
// expiry, scored by expiry epoch seconds.
func OfferExpiryIndex() string {
	return NamespaceOffer + "expiry:index"
}

// OfferExpiryMarker returns the per-offer marker key for O(1) lookup of a
// tracked offer's expiry time.
func OfferExpiryMarker(offerID string) string {
	return NamespaceOffer + "expiry:at:" + offerID
}

// ============================================================================
// REAL-TIME STATE KEYS
// ============================================================================

// Presence returns the TTL-bound presence key for a user.
func Presence(userID string) string {
	return NamespacePresence + userID
}

// Typing returns the TTL-bound typing key for a user in a conversation.
func Typing(conversationID, userID string) string {
	return NamespaceTyping + conversationID + ":" + userID
}

// TypingPattern matches every typing key under a conversation.
func TypingPattern(conversationID string) string {
	return NamespaceTyping + conversationID + ":*"
}

// UnreadTotal returns the per-user total unread counter key.
func UnreadTotal(userID string) string {
	return NamespaceUnread + userID
}

// UnreadConversation returns the per-(user, conversation) unread counter.
func UnreadConversation(userID, conversationID string) string {
	return NamespaceUnread + userID + ":" + conversationID
}

// UnreadConversationPattern matches every per-conversation unread counter
// for a user.
func UnreadConversationPattern(userID string) string {
	return NamespaceUnread + userID + ":*"
}

// ============================================================================
// DIGESTS
// ============================================================================

// FilterDigest produces a fixed-width digest of a filter set. Fields are
// serialized in sorted order so that logically identical filter maps hash
// identically no matter how the caller assembled them.
func FilterDigest(filters map[string]any) string {
	if len(filters) == 0 {
		return "none"
	}
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	hasher := md5.New()
	for _, name := range names {
		hasher.Write([]byte(name))
		hasher.Write([]byte{'='})
		// json.Marshal gives a canonical rendering for every filter value
		// shape, including nested maps (object keys are sorted).
		val, err := json.Marshal(filters[name])
		if err != nil {
			val = []byte(fmt.Sprintf("%v", filters[name]))
		}
		hasher.Write(val)
		hasher.Write([]byte{';'})
	}
	return fmt.Sprintf("%x", hasher.Sum(nil))[:digestLength]
}

// GeoBucket quantizes coordinates to the fixed precision used for feed
// keys.
func GeoBucket(lat, lng float64) string {
	return formatCoord(lat) + "," + formatCoord(lng)
}

func formatCoord(c float64) string {
	return strconv.FormatFloat(c, 'f', geoPrecision, 64)
}
