package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/voicenotes/internal/auth"
	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/netx"
)

type ctxKey string

const deviceIDKey ctxKey = "deviceID"

// DeviceID returns the authenticated device id, if any.
func DeviceID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceIDKey).(string)
	return id, ok
}

// authenticate requires a valid bearer token when a secret is configured.
// WebSocket clients that cannot set headers may pass access_token in the
// query string.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := netx.BearerToken(r.Header.Get(common.AuthorizationHeader))
		if !ok {
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			respondError(w, http.StatusUnauthorized, "missing token")
			return
		}

		deviceID, err := auth.GetDeviceIDFromToken(token, a.secret)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, common.ErrTokenExpired) {
				msg = "token expired"
			}
			respondError(w, http.StatusUnauthorized, msg)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), deviceIDKey, deviceID)))
	})
}
