package httpapi

import (
	"context"
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/GibsonWaheire/POS-salon/internal/domain"
	"github.com/GibsonWaheire/POS-salon/internal/service"
)

// demoSessionTTL caps sandbox sessions. Demo staff tokens expire quickly and
// the logout path wipes everything the session created.
const demoSessionTTL = 5 * time.Minute

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	service  *service.Service
}

type salonClaims struct {
	jwtlib.RegisteredClaims
	Name string `json:"name"`
	Role string `json:"role"`
	Demo bool   `json:"demo,omitempty"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, svc *service.Service) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		service:  svc,
	}
}

// Login verifies the staff PIN, records a login-log row and mints a bearer
// token. Demo staff get a short-lived session with an explicit expiry the
// client can display.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest, ipAddress string) (domain.LoginResponse, error) {
	staff, err := a.service.Authenticate(ctx, req.StaffID, req.PIN)
	if err != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	demo := staff.Partition.IsDemo()
	ttl := a.tokenTTL
	if demo {
		ttl = demoSessionTTL
	}
	expiresAt := time.Now().UTC().Add(ttl)

	var demoExpiresAt *time.Time
	if demo {
		demoExpiresAt = &expiresAt
	}
	loginLog, err := a.service.RecordLogin(ctx, staff.ID, ipAddress, demoExpiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	token, err := a.sign(staff, demo, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken:   token,
		Staff:         staff,
		LoginLogID:    loginLog.ID,
		Demo:          demo,
		DemoExpiresAt: demoExpiresAt,
		ExpiresAt:     expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &salonClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{
		StaffID: sub,
		Name:    claims.Name,
		Role:    claims.Role,
		Demo:    claims.Demo,
	}, nil
}

func (a *AuthManager) sign(staff domain.Staff, demo bool, expiresAt time.Time) (string, error) {
	claims := salonClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   staff.ID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "pos-salon",
		},
		Name: staff.Name,
		Role: staff.Role,
		Demo: demo,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
