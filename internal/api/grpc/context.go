package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"serialrent-backend/internal/domain"
)

// ActorMetadataKey carries the authenticated actor; the auth interceptor overwrites any client value.
const ActorMetadataKey = "actor"

// GetActorFromContext extracts the actor the auth interceptor injected into the metadata.
func GetActorFromContext(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Errorf(codes.Unauthenticated, "metadata is not provided")
	}

	actors := md.Get(ActorMetadataKey)
	if len(actors) == 0 || actors[0] == "" {
		return "", status.Errorf(codes.Unauthenticated, "actor is not provided in metadata")
	}
	return actors[0], nil
}

// toStatus maps a domain error onto a gRPC status.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrIllegalLifecycleTransition),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrConflictingAllocation),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrIncompleteAssessment):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrBillingUnavailable):
		code = codes.Unavailable
	}
	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}
