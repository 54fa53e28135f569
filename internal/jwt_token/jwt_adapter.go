package jwttoken

import (
	authmw "mobirides/pkg/platform/middleware/auth"
)

// Middleware returns the validator the bearer auth middleware consumes. Only
// the subject and role travel into the request context.
func (s *JWTService) Middleware() authmw.JWTValidator {
	return middlewareValidator{service: s}
}

type middlewareValidator struct {
	service *JWTService
}

func (v middlewareValidator) ValidateToken(raw string) (*authmw.JWTClaims, error) {
	claims, err := v.service.ValidateToken(raw)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{UserID: claims.UserID, Role: claims.Role}, nil
}
