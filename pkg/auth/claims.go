package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stitchwell-backend/pkg/enums"
)

type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.UserRole
	// JTI is optional; MintAccessToken fills one in.
	JTI string
}

type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}
