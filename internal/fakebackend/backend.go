// Package fakebackend is an in-process stand-in for the backend API. It speaks the
// same {success, data|error} envelope, issues HS256 tokens at login and answers
// expired tokens with the "Token expired" sentinel. Tests and cmd/devbackend use it.
package fakebackend

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	ExpiredMessage     = "Token expired"
	InvalidLogin       = "Invalid email or password"
	invalidToken       = "Invalid token"
	missingToken       = "Authentication required"
	forbidden          = "Admin access required"
	rateLimitedMessage = "rate limit exceeded"

	maxUploadSize = 10 << 20
)

type account struct {
	user         users.User
	passwordHash []byte
}

type claims struct {
	Generation int `json:"gen"`
	jwt.RegisteredClaims
}

type Backend struct {
	router     *mux.Router
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
	nowTime    func() time.Time

	lock       sync.RWMutex
	accounts   map[string]*account // by lower-case email
	generation int
	throttled  bool
	logins     int
}

type Option func(*Backend)

// WithSecret sets the HS256 signing key.
func WithSecret(secret []byte) Option {
	return func(b *Backend) {
		b.secret = secret
	}
}

// WithTokenTTL sets how long issued tokens live.
func WithTokenTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		b.tokenTTL = ttl
	}
}

// WithBcryptCost sets the password hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(b *Backend) {
		b.bcryptCost = cost
	}
}

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(b *Backend) {
		b.nowTime = nowFunc
	}
}

func New(options ...Option) *Backend {
	b := &Backend{
		secret:     []byte(uuid.New().String()),
		tokenTTL:   time.Hour,
		bcryptCost: bcrypt.DefaultCost,
		nowTime:    time.Now,
		accounts:   make(map[string]*account),
	}
	for _, opt := range options {
		opt(b)
	}
	b.initRoutes()
	return b
}

func (b *Backend) initRoutes() {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(logRequests, recoverPanics, b.throttle)
	api.HandleFunc("/auth/login", b.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", b.requireAuth(b.handleMe)).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/stats", b.requireAuth(b.requireAdmin(b.handleStats))).Methods(http.MethodGet)
	api.HandleFunc("/uploads", b.requireAuth(b.handleUpload)).Methods(http.MethodPost)
	b.router = r
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

// AddUser registers an account. A user without an id is given one.
func (b *Backend) AddUser(u users.User, password string) (users.User, error) {
	if u.Email == "" {
		return users.User{}, errors.New("[AddUser] email is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.bcryptCost)
	if err != nil {
		return users.User{}, errors.Wrap(err, "[AddUser] hash password")
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	b.accounts[strings.ToLower(u.Email)] = &account{user: u, passwordHash: hash}
	return u, nil
}

// ExpireSessions makes every token issued so far answer with the expired sentinel.
func (b *Backend) ExpireSessions() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.generation++
}

// SetThrottled makes every API call answer 429 while on.
func (b *Backend) SetThrottled(on bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.throttled = on
}

// Logins returns the number of login attempts received.
func (b *Backend) Logins() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.logins
}

// IssueToken signs a token for userID with the current generation.
func (b *Backend) IssueToken(userID string) (string, error) {
	b.lock.RLock()
	gen := b.generation
	b.lock.RUnlock()

	now := b.nowTime()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Generation: gen,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.tokenTTL)),
		},
	}).SignedString(b.secret)
	if err != nil {
		return "", errors.Wrap(err, "[IssueToken] sign")
	}
	return signed, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string     `json:"token"`
	User  users.User `json:"user"`
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	b.lock.Lock()
	b.logins++
	acct, ok := b.accounts[strings.ToLower(req.Email)]
	b.lock.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(req.Password)) != nil {
		log.Info().Str("email", req.Email).Msg("fakebackend: rejected login")
		writeFailure(w, http.StatusUnauthorized, InvalidLogin)
		return
	}

	token, err := b.IssueToken(acct.user.ID)
	if err != nil {
		log.Err(err).Msg("fakebackend: failed to issue token")
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeData(w, http.StatusOK, loginResponse{Token: token, User: acct.user})
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request, u users.User) {
	writeData(w, http.StatusOK, u)
}

func (b *Backend) handleStats(w http.ResponseWriter, r *http.Request, _ users.User) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	writeData(w, http.StatusOK, map[string]int{"users": len(b.accounts), "logins": b.logins})
}

type uploadResponse struct {
	Field string `json:"field"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request, _ users.User) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeFailure(w, http.StatusBadRequest, "Expected a multipart upload")
		return
	}
	var files []uploadResponse
	for field, headers := range r.MultipartForm.File {
		for _, h := range headers {
			files = append(files, uploadResponse{Field: field, Name: h.Filename, Size: h.Size})
		}
	}
	writeData(w, http.StatusOK, files)
}

type authedHandler func(http.ResponseWriter, *http.Request, users.User)

func (b *Backend) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			writeFailure(w, http.StatusUnauthorized, missingToken)
			return
		}

		u, msg := b.authenticate(parts[1])
		if msg != "" {
			writeFailure(w, http.StatusUnauthorized, msg)
			return
		}
		next(w, r, u)
	}
}

// authenticate returns the user for token, or the failure message to send.
func (b *Backend) authenticate(token string) (users.User, string) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(b.nowTime))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return users.User{}, ExpiredMessage
	}
	if err != nil {
		return users.User{}, invalidToken
	}

	b.lock.RLock()
	defer b.lock.RUnlock()
	if c.Generation < b.generation {
		return users.User{}, ExpiredMessage
	}
	for _, acct := range b.accounts {
		if acct.user.ID == c.Subject {
			return acct.user, ""
		}
	}
	return users.User{}, invalidToken
}

func (b *Backend) requireAdmin(next authedHandler) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, u users.User) {
		if !u.IsSuperAdmin && u.Role != users.RoleAdmin {
			writeFailure(w, http.StatusForbidden, forbidden)
			return
		}
		next(w, r, u)
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, envelope{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeEnvelope(w, status, envelope{Success: false, Error: msg})
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Err(err).Int("status", status).Msg("fakebackend: failed to write response")
	}
}
