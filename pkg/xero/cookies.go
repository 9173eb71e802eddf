package xero

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	cookieAccess  = "xero_access_token"
	cookieRefresh = "xero_refresh_token"
	cookieTenant  = "xero_tenant_id"
	cookieState   = "xero_oauth_state"
)

// cookieJar stores values in HMAC signed cookies. The expiry is part of the
// signed payload and checked against the jar's clock, so a value is gone at
// its deadline even if the browser keeps sending it.
type cookieJar struct {
	secret []byte
	secure bool
	now    func() time.Time
}

func (j *cookieJar) set(w http.ResponseWriter, name, value string, ttl time.Duration) error {
	expires := j.now().Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"name":  name,
		"value": value,
		"exp":   expires.Unix(),
	})
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return fmt.Errorf("sign cookie %s: %w", name, err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    signed,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// get returns the value of a cookie written by set, or false when it is
// missing, tampered with or past its expiry.
func (j *cookieJar) get(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}

	parser := jwt.Parser{SkipClaimsValidation: true}
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(c.Value, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}

	if claims["name"] != name {
		return "", false
	}
	exp, ok := claims["exp"].(float64)
	if !ok || j.now().Unix() >= int64(exp) {
		return "", false
	}
	value, ok := claims["value"].(string)
	return value, ok
}

func (j *cookieJar) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
