package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/httpx"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
)

const maxCartBodySize = 4 * 1024

// CartHandlers exposes the pre-checkout cart to signed-in users and guest sessions.
type CartHandlers struct {
	authn  *auth.Authenticator
	guests *GuestSessions
	carts  services.CartService
}

// NewCartHandlers constructs the cart endpoints.
func NewCartHandlers(authn *auth.Authenticator, guests *GuestSessions, carts services.CartService) *CartHandlers {
	if guests == nil {
		guests = NewGuestSessions()
	}
	return &CartHandlers{authn: authn, guests: guests, carts: carts}
}

// Routes wires the /cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Group(func(owner chi.Router) {
		owner.Use(h.guests.Issue())
		owner.Get("/", h.getCart)
		owner.Delete("/", h.clearCart)
		owner.Post("/items", h.addItem)
		owner.Patch("/items/{itemID}", h.updateItem)
		owner.Delete("/items/{itemID}", h.removeItem)
	})
	r.With(h.guests.Resolve()).Post("/merge", h.mergeCart)
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

type mergeCartRequest struct {
	GuestSession string `json:"guest_session"`
}

// cartOwner answers from the signed-in identity when present so a user never reads a guest cart.
func cartOwner(r *http.Request) services.Viewer {
	viewer := viewerFromRequest(r)
	if viewer.UserID != "" {
		viewer.GuestSession = ""
	}
	return viewer
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		unavailable(w, r, "cart")
		return
	}
	cart, err := h.carts.GetCart(r.Context(), cartOwner(r))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		unavailable(w, r, "cart")
		return
	}
	var req addCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	cart, err := h.carts.AddItem(r.Context(), services.AddCartItemCommand{
		Owner:     cartOwner(r),
		ProductID: strings.TrimSpace(req.ProductID),
		Size:      strings.TrimSpace(req.Size),
		Quantity:  quantity,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		unavailable(w, r, "cart")
		return
	}
	var req updateCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError(codeValidation, "quantity is required", http.StatusBadRequest))
		return
	}
	cart, err := h.carts.UpdateItemQuantity(r.Context(), services.UpdateCartItemCommand{
		Owner:    cartOwner(r),
		ItemID:   strings.TrimSpace(chi.URLParam(r, "itemID")),
		Quantity: *req.Quantity,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		unavailable(w, r, "cart")
		return
	}
	cart, err := h.carts.RemoveItem(r.Context(), cartOwner(r), strings.TrimSpace(chi.URLParam(r, "itemID")))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		unavailable(w, r, "cart")
		return
	}
	if err := h.carts.ClearCart(r.Context(), cartOwner(r)); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeCart(w, http.StatusOK, services.Cart{})
}

// mergeCart folds the guest cart into the signed-in user's cart. The guest token comes from
// the body or, failing that, the request's own guest session.
func (h *CartHandlers) mergeCart(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		unavailable(w, r, "cart")
		return
	}
	viewer, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req mergeCartRequest
	if r.ContentLength != 0 && !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	guest := strings.TrimSpace(req.GuestSession)
	if guest == "" {
		guest = viewer.GuestSession
	}
	if guest == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError(codeValidation, "guest session is required", http.StatusBadRequest))
		return
	}
	cart, err := h.carts.MergeGuestCart(r.Context(), viewer.UserID, guest)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	clearGuestCookie(w)
	writeCart(w, http.StatusOK, cart)
}

func writeCart(w http.ResponseWriter, status int, cart services.Cart) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, status, map[string]any{"cart": buildCartPayload(cart)})
}

func clearGuestCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: guestSessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
}
