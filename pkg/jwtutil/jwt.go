package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/config"
)

const objectAudience = "storage"

// UserClaims represents the JWT claims for user authentication
type UserClaims struct {
	Email    string `json:"email"`
	UserID   uint   `json:"user_id"`
	UserType string `json:"user_type,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

// ObjectClaims scope a signed storage URL to one object
type ObjectClaims struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	jwt.RegisteredClaims
}

// JWTUtil is a utility for JWT token operations
type JWTUtil struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewJWTUtil creates a new JWT utility with the given configuration
func NewJWTUtil(cfg *config.JWTConfig) *JWTUtil {
	return &JWTUtil{config: cfg, now: time.Now}
}

// GenerateToken creates a JWT token with user information
func (j *JWTUtil) GenerateToken(userID uint, email, userType string, isAdmin bool) (string, error) {
	if j.config == nil {
		return "", errors.New("JWT configuration not provided")
	}

	now := j.now()
	claims := UserClaims{
		Email:    email,
		UserID:   userID,
		UserType: userType,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(j.config.ExpirationHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.config.SigningKey))
}

// ValidateToken validates and parses the JWT token
func (j *JWTUtil) ValidateToken(tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}
	if err := j.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.UserID == 0 {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// SignObject issues a short lived token granting read access to bucket/key
func (j *JWTUtil) SignObject(bucket, key string, ttl time.Duration) (string, time.Time, error) {
	if j.config == nil {
		return "", time.Time{}, errors.New("JWT configuration not provided")
	}
	now := j.now()
	expiresAt := now.Add(ttl)
	claims := ObjectClaims{
		Bucket: bucket,
		Key:    key,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{objectAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(j.config.SigningKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyObject checks that token was issued for exactly bucket/key and is not expired
func (j *JWTUtil) VerifyObject(tokenString, bucket, key string) error {
	claims := &ObjectClaims{}
	if err := j.parse(tokenString, claims, jwt.WithAudience(objectAudience)); err != nil {
		return err
	}
	if claims.Bucket != bucket || claims.Key != key {
		return errors.New("token does not grant access to this object")
	}
	return nil
}

func (j *JWTUtil) parse(tokenString string, claims jwt.Claims, opts ...jwt.ParserOption) error {
	if j.config == nil {
		return errors.New("JWT configuration not provided")
	}

	opts = append(opts, jwt.WithTimeFunc(j.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.config.SigningKey), nil
	}, opts...)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}
