package entitlement

import (
	"context"
	"log/slog"

	"subgate/internal/external"
)

// Service applies entitlement decisions to the identity directory.
type Service struct {
	directory external.IdentityDirectory
	claimName string
	logger    *slog.Logger
}

// NewService creates an entitlement Service. claimName is the key written
// into the identity's custom-claims document.
func NewService(directory external.IdentityDirectory, claimName string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		directory: directory,
		claimName: claimName,
		logger:    logger,
	}
}

// SetEntitlement sets the entitlement claim for the identity addressed by
// email. The directory's claims write replaces the whole document, so the
// current claims are read first and the entitlement key is merged in; every
// unrelated claim (admin flags, tenant ids) survives the write.
//
// The operation is idempotent: granting an already-granted identity or
// revoking an already-revoked one rewrites the same document.
func (s *Service) SetEntitlement(ctx context.Context, email string, granted bool) error {
	identity, err := s.directory.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	claims := make(map[string]any, len(identity.Claims)+1)
	for k, v := range identity.Claims {
		claims[k] = v
	}
	claims[s.claimName] = granted

	if err := s.directory.SetClaims(ctx, identity.ID, claims); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "entitlement claim updated",
		"identity_id", identity.ID,
		"claim", s.claimName,
		"granted", granted,
	)
	return nil
}
