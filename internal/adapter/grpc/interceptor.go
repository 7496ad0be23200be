package grpc

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ownerKey struct{}

// WithOwner stores the authenticated owner identity in ctx
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFromContext returns the owner identity placed by AuthInterceptor
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerKey{}).(string)
	return owner, ok && owner != ""
}

// Authenticator maps a bearer token to an owner identity.
// A static token (development) maps to StaticOwner; anything else must be an
// HS256 JWT signed with JWTSecret whose "sub" claim names the owner.
type Authenticator struct {
	StaticToken string
	StaticOwner string
	JWTSecret   []byte
}

var errInvalidToken = errors.New("invalid token")

// Owner validates token and returns the owner it belongs to
func (a *Authenticator) Owner(token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", errInvalidToken
	}

	if a.StaticToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.StaticToken)) == 1 {
		return a.StaticOwner, nil
	}
	if len(a.JWTSecret) == 0 {
		return "", errInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.JWTSecret, nil
	})
	if err != nil || !parsed.Valid {
		return "", errInvalidToken
	}
	if claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

// AuthInterceptor returns a gRPC unary server interceptor that validates
// the authorization token from request metadata.
// If the token is missing or invalid, it returns status.Unauthenticated.
// If valid, it calls the handler with the owner identity in the context.
func AuthInterceptor(auth *Authenticator) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		authHeaders := md.Get("authorization")
		if len(authHeaders) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}

		owner, err := auth.Owner(authHeaders[0])
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		return handler(WithOwner(ctx, owner), req)
	}
}

// LoggingInterceptor logs every call and turns handler panics into codes.Internal
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.Stack("stack"))
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}

			code := status.Code(err)
			fields := []zap.Field{
				zap.String("method", info.FullMethod),
				zap.String("code", code.String()),
				zap.Duration("duration", time.Since(start)),
			}
			switch code {
			case codes.OK:
				logger.Info("rpc", fields...)
			case codes.Internal, codes.Unavailable:
				logger.Error("rpc", append(fields, zap.Error(err))...)
			default:
				logger.Warn("rpc", append(fields, zap.Error(err))...)
			}
		}()

		return handler(ctx, req)
	}
}

// OwnerRateLimiter keeps one token bucket per owner
type OwnerRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewOwnerRateLimiter allows rps requests per second per owner with the given burst
func NewOwnerRateLimiter(rps float64, burst int) *OwnerRateLimiter {
	return &OwnerRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether owner may make a request now
func (l *OwnerRateLimiter) Allow(owner string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[owner]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[owner] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// RateLimitInterceptor rejects calls over the owner's budget with codes.ResourceExhausted.
// It must run after AuthInterceptor.
func RateLimitInterceptor(limiter *OwnerRateLimiter, logger *zap.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		owner, _ := OwnerFromContext(ctx)
		if !limiter.Allow(owner) {
			logger.Warn("rate limit exceeded",
				zap.String("owner", owner),
				zap.String("method", info.FullMethod))
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}
