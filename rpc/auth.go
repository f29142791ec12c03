package rpc

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

const authClockSkew = 2 * time.Minute

type contextKey string

const callerContextKey contextKey = "rpc.caller"

func withCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// callerFrom returns the authenticated account bound to ctx.
func callerFrom(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(callerContextKey).(common.Address)
	return caller, ok
}

// authenticator validates HMAC-signed bearer tokens whose subject is the
// caller's account address.
type authenticator struct {
	secret   []byte
	issuer   string
	audience string
}

func newAuthenticator(secret, issuer, audience string) *authenticator {
	return &authenticator{
		secret:   []byte(strings.TrimSpace(secret)),
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
	}
}

func (a *authenticator) authenticate(r *http.Request) (common.Address, *RPCError) {
	if len(a.secret) == 0 {
		return common.Address{}, &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return common.Address{}, &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	token := extractBearer(header)
	if token == "" {
		return common.Address{}, &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	subject, err := a.parse(token)
	if err != nil {
		return common.Address{}, &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials", Data: err.Error()}
	}
	if !common.IsHexAddress(subject) {
		return common.Address{}, &RPCError{Code: codeUnauthorized, Message: "token subject must be an account address"}
	}
	caller := common.HexToAddress(subject)
	if caller == (common.Address{}) {
		return common.Address{}, &RPCError{Code: codeUnauthorized, Message: "token subject must be an account address"}
	}
	return caller, nil
}

func (a *authenticator) parse(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(authClockSkew),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("token invalid")
	}
	return strings.TrimSpace(claims.Subject), nil
}

// SignToken issues an HS256 bearer token for subject. It backs the CLI's
// development token command and tests.
func SignToken(secret, issuer, audience string, subject common.Address, ttl time.Duration) (string, error) {
	key := []byte(strings.TrimSpace(secret))
	if len(key) == 0 {
		return "", errors.New("rpc: token secret required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if issuer = strings.TrimSpace(issuer); issuer != "" {
		claims.Issuer = issuer
	}
	if audience = strings.TrimSpace(audience); audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
