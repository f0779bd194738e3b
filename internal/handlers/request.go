package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/httpx"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/requestctx"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
)

const defaultBodyLimit = 16 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	return data, nil
}

// decodeJSONBody reads and decodes a bounded JSON body, writing the error envelope on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("PAYLOAD_TOO_LARGE", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError(codeValidation, err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(codeValidation, "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

// viewerFromRequest combines the verified Firebase identity with the guest session token.
func viewerFromRequest(r *http.Request) services.Viewer {
	ctx := r.Context()
	viewer := services.Viewer{GuestSession: requestctx.GuestSession(ctx)}
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		viewer.UserID = strings.TrimSpace(identity.UID)
		viewer.Admin = identity.IsAdmin()
	}
	return viewer
}

// requireUser writes 401 and returns false when the request has no signed-in user.
func requireUser(w http.ResponseWriter, r *http.Request) (services.Viewer, bool) {
	viewer := viewerFromRequest(r)
	if viewer.UserID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError(codeUnauthenticated, "authentication required", http.StatusUnauthorized))
		return viewer, false
	}
	return viewer, true
}

func unavailable(w http.ResponseWriter, r *http.Request, name string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(codeServiceUnavailable, name+" service unavailable", http.StatusServiceUnavailable))
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

// amount renders money as a JSON number with two decimals.
func amount(m domain.Money) json.Number {
	return json.Number(m.StringFixed(2))
}

func optionalAmount(m *domain.Money) *json.Number {
	if m == nil {
		return nil
	}
	v := amount(*m)
	return &v
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}
