package solark

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// safeFloat coerces an arbitrary JSON scalar to float64. Missing, nil and
// unparseable values degrade to 0.0, never an error.
func safeFloat(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0.0
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0.0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0.0
		}
		return f
	case bool:
		if t {
			return 1.0
		}
		return 0.0
	default:
		return 0.0
	}
}

// boolFlag reports whether a raw direction flag is present and truthy.
// Firmware variants encode these as booleans, numbers or strings.
func boolFlag(v any, present bool) bool {
	if !present || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true") || t == "1"
	default:
		return safeFloat(v) != 0.0
	}
}

// GetJWTExpired returns the expiry instant embedded in a bearer token, when
// the token happens to be a JWT carrying an "exp" claim.
func GetJWTExpired(rawToken string) (*time.Time, error) {
	token, err := parseUnverified(rawToken)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid or missing claims")
	}
	unixTs, ok := claims["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("invalid or missing 'exp' claim: %+v", claims)
	}
	tm := time.Unix(int64(unixTs), 0)
	return &tm, nil
}

func parseUnverified(rawToken string) (*jwt.Token, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(rawToken, jwt.MapClaims{})
	return token, err
}
