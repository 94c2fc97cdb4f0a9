package interceptor

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"serialrent-backend/internal/config"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/security"
)

// actorKey must match grpc.ActorMetadataKey.
const actorKey = "actor"

type AuthInterceptor struct {
	tokenManager  security.TokenManager
	scannerKeys   security.APIKeyVerifier
	scannerPrefix string
}

func NewAuthInterceptor(tm security.TokenManager, scannerKeys security.APIKeyVerifier, scannerPrefix string) *AuthInterceptor {
	if scannerPrefix == "" {
		scannerPrefix = "scanner"
	}
	return &AuthInterceptor{tokenManager: tm, scannerKeys: scannerKeys, scannerPrefix: scannerPrefix}
}

// Unary returns a server interceptor function to authenticate and authorize unary RPCs
func (i *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		level := config.GetSecurityLevel(info.FullMethod)

		// Public endpoint - skip auth
		if level == config.SecurityPublic {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "metadata is not provided")
		}

		actor, err := i.authenticate(md, level)
		if err != nil {
			return nil, err
		}

		// Copy, then Set so a client-supplied "actor" header never survives.
		md = md.Copy()
		md.Set(actorKey, actor)
		return handler(metadata.NewIncomingContext(ctx, md), req)
	}
}

func (i *AuthInterceptor) authenticate(md metadata.MD, level config.SecurityLevel) (string, error) {
	if token := extractToken(md); token != "" {
		claims, err := i.tokenManager.ValidateToken(token)
		if err != nil {
			return "", status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
		}
		if claims.Type != security.TokenTypeAccess {
			return "", status.Error(codes.PermissionDenied, "access token required")
		}
		return claims.Actor, nil
	}

	keys := md.Get("x-api-key")
	if len(keys) == 0 {
		return "", status.Error(codes.Unauthenticated, "authorization token is not provided")
	}
	if level != config.SecurityScanner {
		return "", status.Error(codes.PermissionDenied, "access token required")
	}
	if i.scannerKeys == nil || !i.scannerKeys.Verify(keys[0]) {
		return "", status.Error(codes.Unauthenticated, "invalid API key")
	}
	actor := i.scannerPrefix
	if ids := md.Get("x-scanner-id"); len(ids) > 0 && strings.TrimSpace(ids[0]) != "" {
		actor += ":" + strings.TrimSpace(ids[0])
	}
	return actor, nil
}

func extractToken(md metadata.MD) string {
	authHeader := md["authorization"]
	if len(authHeader) == 0 {
		return ""
	}

	token := authHeader[0]
	// Remove Bearer prefix if present
	if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
		token = token[7:]
	}
	return strings.TrimSpace(token)
}

// Logging logs each RPC with its outcome and duration.
func Logging() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		args := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
		if code == codes.Internal || code == codes.Unknown {
			logger.Warn("gRPC request", append(args, "error", err)...)
		} else {
			logger.Debug("gRPC request", args...)
		}
		return resp, err
	}
}
