package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/spawnsvc/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken - токен не прошёл проверку подписи или срока действия
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidCredentials - неверное имя пользователя или пароль
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Claims represents JWT claims
type Claims struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Options настраивает Authenticator
type Options struct {
	Secret        []byte        // пусто - случайный секрет на время жизни процесса
	TokenTTL      time.Duration // 0 - 24 часа
	AdminUser     string
	AdminPassHash string // bcrypt хеш; пусто - вход администратора отключён
}

// Authenticator выпускает и проверяет JWT администраторов
type Authenticator struct {
	secret        []byte
	tokenTTL      time.Duration
	adminUser     string
	adminPassHash string
	now           func() time.Time
}

// NewAuthenticator создает новый аутентификатор
func NewAuthenticator(opts Options) *Authenticator {
	secret := opts.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logging.Error("КРИТИЧЕСКАЯ ОШИБКА: не удалось сгенерировать JWT секрет: %v", err)
		}
		logging.Warn("🔐 JWT секрет не задан, токены не переживут перезапуск")
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{
		secret:        secret,
		tokenTTL:      ttl,
		adminUser:     opts.AdminUser,
		adminPassHash: opts.AdminPassHash,
		now:           time.Now,
	}
}

// GenerateJWT creates a signed HS256 token
func (a *Authenticator) GenerateJWT(username string, isAdmin bool) (string, error) {
	now := a.now()
	claims := &Claims{
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "spawnsvc",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateJWT checks token validity and returns its claims
func (a *Authenticator) ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithIssuer("spawnsvc"))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Login проверяет учётные данные администратора и выдаёт токен
func (a *Authenticator) Login(username, password string) (string, error) {
	if a.adminPassHash == "" || username != a.adminUser || !CheckPassword(a.adminPassHash, password) {
		logging.Warn("🔐 Неудачная попытка входа: user=%s", username)
		return "", ErrInvalidCredentials
	}
	logging.Info("🔐 Администратор %s вошёл в систему", username)
	return a.GenerateJWT(username, true)
}

// GenerateSecureSecret generates a new secure secret key
func GenerateSecureSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeSecret разбирает base64 секрет; короче 32 байт - ошибка
func DecodeSecret(secret string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, err
	}
	if len(decoded) < 32 {
		return nil, errors.New("secret key must be at least 32 bytes")
	}
	return decoded, nil
}
