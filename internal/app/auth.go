package app

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	principalKey  = "principal"
	stateAudience = "calendar-oauth"
	stateTTL      = 10 * time.Minute
)

// Principal is the authenticated caller.
type Principal struct {
	UserID int64
	Email  string
	Role   Role
}

type claims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session and OAuth state tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *TokenIssuer) sign(c claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
}

// Issue returns a session token for u.
func (t *TokenIssuer) Issue(u *User) (string, error) {
	now := t.now()
	return t.sign(claims{
		Email: u.Email,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	})
}

func (t *TokenIssuer) parse(tokenStr string, opts ...jwt.ParserOption) (*claims, error) {
	var c claims
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
		jwt.WithTimeFunc(t.now),
	)
	_, err := jwt.ParseWithClaims(tokenStr, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenMalformed
		}
		return t.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Verify parses a session token into a Principal.
func (t *TokenIssuer) Verify(tokenStr string) (Principal, error) {
	c, err := t.parse(tokenStr, jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, err
	}
	if len(c.Audience) > 0 {
		return Principal{}, jwt.ErrTokenInvalidAudience
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid subject: %w", jwt.ErrTokenInvalidClaims)
	}
	if c.Role != RolePatient && c.Role != RoleDoctor {
		return Principal{}, fmt.Errorf("invalid role: %w", jwt.ErrTokenInvalidClaims)
	}
	return Principal{UserID: id, Email: c.Email, Role: c.Role}, nil
}

// IssueState returns the OAuth state for a doctor linking a calendar.
func (t *TokenIssuer) IssueState(doctorID int64) (string, error) {
	now := t.now()
	return t.sign(claims{
		Role: RoleDoctor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(doctorID, 10),
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	})
}

func (t *TokenIssuer) VerifyState(state string) (int64, error) {
	c, err := t.parse(state, jwt.WithAudience(stateAudience), jwt.WithExpirationRequired())
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Authenticate requires a valid bearer token and stores its Principal.
func (a *App) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		p, err := a.Tokens.Verify(parts[1])
		if err != nil {
			a.Logger.Debug("token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// RequireRole admits callers whose role is one of roles. It must run after
// Authenticate.
func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	}
}

func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func principal(c *gin.Context) Principal {
	p, _ := PrincipalFrom(c)
	return p
}

type registerReq struct {
	Email     string `json:"email" binding:"required,email,max=100"`
	Password  string `json:"password" binding:"required,min=8,max=72"`
	Role      string `json:"role" binding:"required"`
	FirstName string `json:"first_name" binding:"required,max=50"`
	LastName  string `json:"last_name" binding:"required,max=50"`
}

type loginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResp struct {
	Token string `json:"token"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// POST /api/auth/register
func (a *App) RegisterHandler(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		a.fail(c, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.fail(c, fmt.Errorf("hash password: %w", err))
		return
	}

	u := &User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		Role:         role,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
	}
	if err := a.Repo.CreateUser(c.Request.Context(), u); err != nil {
		a.fail(c, err)
		return
	}

	token, err := a.Tokens.Issue(u)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.Logger.Info("user registered", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	c.JSON(http.StatusCreated, authResp{Token: token, Email: u.Email, Role: u.Role})
}

// POST /api/auth/login
func (a *App) LoginHandler(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := a.Repo.UserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, ErrNotFound) {
		a.fail(c, ErrInvalidCredentials)
		return
	}
	if err != nil {
		a.fail(c, err)
		return
	}
	if !u.IsActive || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		a.fail(c, ErrInvalidCredentials)
		return
	}

	token, err := a.Tokens.Issue(u)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, authResp{Token: token, Email: u.Email, Role: u.Role})
}
