package chi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
	domkey "github.com/kailas-cloud/searchcore/internal/domain/key"
	logpkg "github.com/kailas-cloud/searchcore/internal/logger"
)

// KeyLister returns the stored API keys.
type KeyLister interface {
	List(ctx context.Context) ([]domkey.Key, error)
}

// Authenticator checks Bearer credentials: the master key, or an API key value derived
// from it that grants the route's action.
type Authenticator struct {
	masterKey string
	keys      KeyLister
	now       func() time.Time
}

// NewAuthenticator creates an Authenticator. An empty master key disables
// authentication.
func NewAuthenticator(masterKey string, keys KeyLister) *Authenticator {
	return &Authenticator{masterKey: masterKey, keys: keys, now: time.Now}
}

// Require returns a middleware admitting requests whose credential grants action.
func (a *Authenticator) Require(action domkey.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		// Auth disabled
		if a.masterKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, r, errcode.New(errcode.MissingAuthorizationHeader,
					"The Authorization header is missing. It must use the bearer authorization method."))
				return
			}
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				writeError(w, r, errcode.New(errcode.MissingAuthorizationHeader,
					"The Authorization header must use the bearer authorization method."))
				return
			}
			principal, err := a.allows(r.Context(), token, action)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if principal == "" {
				writeError(w, r, errcode.New(errcode.InvalidAPIKey, "The provided API key is invalid."))
				return
			}
			ctx := logpkg.With(r.Context(), zap.String("principal", principal))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// allows returns who the token identifies when it grants action: "master" or the API
// key uid. An empty principal means the request is rejected.
func (a *Authenticator) allows(ctx context.Context, token string, action domkey.Action) (string, error) {
	if equal(token, a.masterKey) {
		return "master", nil
	}
	if a.keys == nil {
		return "", nil
	}
	keys, err := a.keys.List(ctx)
	if err != nil {
		return "", err //nolint:wrapcheck // rendered by writeError
	}
	now := a.now()
	for _, k := range keys {
		if !equal(token, k.Value(a.masterKey)) {
			continue
		}
		if !k.Authorizes(action, "", now) {
			return "", nil
		}
		return k.UID().String(), nil
	}
	return "", nil
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
