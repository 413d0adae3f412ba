package payment

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/order"
)

// Checkout session metadata keys.
const (
	MetaSaleID     = "sale_id"
	MetaSaleCode   = "sale_code"
	MetaCartChunks = "cart_chunks"
	metaCartPrefix = "cart_"
)

const (
	cartChunkSize = 500 // Stripe metadata value limit, in characters
	maxCartChunks = 40
)

// EncodeCart stores req in meta as JSON split across cart_0..cart_n.
func EncodeCart(req order.OrderRequest, meta map[string]string) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}

	runes := []rune(string(raw))
	chunks := (len(runes) + cartChunkSize - 1) / cartChunkSize
	if chunks > maxCartChunks {
		return apperr.Validation(apperr.CartTooLarge, "cart does not fit in checkout metadata")
	}

	for i := 0; i < chunks; i++ {
		end := (i + 1) * cartChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		meta[metaCartPrefix+strconv.Itoa(i)] = string(runes[i*cartChunkSize : end])
	}
	meta[MetaCartChunks] = strconv.Itoa(chunks)
	return nil
}

// DecodeCart rebuilds the cart stored by EncodeCart. It returns nil when
// meta carries no cart.
func DecodeCart(meta map[string]string) (*order.OrderRequest, error) {
	chunks := -1
	if v, ok := meta[MetaCartChunks]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxCartChunks {
			return nil, apperr.Validation(apperr.MissingCart, "bad cart chunk count")
		}
		chunks = n
	}

	var raw []byte
	for i := 0; chunks < 0 || i < chunks; i++ {
		part, ok := meta[metaCartPrefix+strconv.Itoa(i)]
		if !ok {
			if chunks >= 0 {
				return nil, apperr.Validation(apperr.MissingCart, "cart chunk "+strconv.Itoa(i)+" missing")
			}
			break
		}
		raw = append(raw, part...)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var req order.OrderRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, apperr.Validation(apperr.MissingCart, "cart metadata is not valid JSON")
	}
	return &req, nil
}
