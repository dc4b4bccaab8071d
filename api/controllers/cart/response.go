package cart

import cartsvc "github.com/angelmondragon/stitchwell-backend/internal/cart"

type cartResponse struct {
	Session string          `json:"session"`
	Items   []cartsvc.Line  `json:"items"`
	Summary cartsvc.Summary `json:"summary"`
}

func newCartResponse(session string, store *cartsvc.Store) cartResponse {
	return cartResponse{
		Session: session,
		Items:   store.Lines(),
		Summary: store.Summary(),
	}
}
