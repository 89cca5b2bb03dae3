package crypto

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// hash.go - проверка токена control API
//
// В конфигурации токен может храниться либо открыто, либо как bcrypt
// хеш (префикс "$2"). Хеш предпочтителен: утёкший конфиг не даёт
// доступа к управлению движком.

var (
	ErrEmptyToken    = errors.New("token cannot be empty")
	ErrTokenMismatch = errors.New("token does not match")
	ErrInvalidHash   = errors.New("invalid token hash format")
	ErrTokenTooLong  = errors.New("token exceeds maximum length of 72 bytes")
)

// DefaultCost - стоимость bcrypt по умолчанию
const DefaultCost = 12

// MaxTokenLength - ограничение bcrypt на длину входа
const MaxTokenLength = 72

// HashToken хеширует токен bcrypt'ом со случайной солью
func HashToken(token string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	if len(token) > MaxTokenLength {
		return "", ErrTokenTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyToken сравнивает предъявленный токен с настроенным значением.
//
// Если configured - bcrypt хеш, сравнение через bcrypt; иначе
// constant-time сравнение открытых строк.
func VerifyToken(presented, configured string) error {
	if presented == "" {
		return ErrEmptyToken
	}
	if configured == "" {
		return ErrInvalidHash
	}

	if IsHash(configured) {
		err := bcrypt.CompareHashAndPassword([]byte(configured), []byte(presented))
		if err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return ErrTokenMismatch
			}
			return ErrInvalidHash
		}
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) != 1 {
		return ErrTokenMismatch
	}
	return nil
}

// TokenMatches - удобная булева обёртка над VerifyToken
func TokenMatches(presented, configured string) bool {
	return VerifyToken(presented, configured) == nil
}

// IsHash определяет, выглядит ли значение как bcrypt хеш
func IsHash(value string) bool {
	return strings.HasPrefix(value, "$2")
}

// HashCost извлекает cost из существующего хеша
func HashCost(hash string) (int, error) {
	if hash == "" {
		return 0, ErrInvalidHash
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, ErrInvalidHash
	}
	return cost, nil
}
