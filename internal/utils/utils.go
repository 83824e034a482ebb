package utils

import (
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	ReferralCodeLength = 8
	referralAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var ErrInvalidPagination = errors.New("invalid pagination parameters")

func GetUserIDFromPath(r *http.Request) (int64, error) {
	id := chi.URLParam(r, "id")
	return strconv.ParseInt(id, 10, 64)
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

var dummyHash = sync.OnceValue(func() string {
	hash, err := HashPassword("dummy-password-for-unknown-accounts")
	if err != nil {
		panic(err)
	}
	return hash
})

// DummyPasswordHash is a valid bcrypt hash that no real password is checked
// against. Comparing with it costs the same as checking a stored hash.
func DummyPasswordHash() string {
	return dummyHash()
}

// GenerateReferralCode returns a random code drawn from [A-Z0-9].
func GenerateReferralCode() (string, error) {
	size := big.NewInt(int64(len(referralAlphabet)))
	code := make([]byte, ReferralCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		code[i] = referralAlphabet[n.Int64()]
	}
	return string(code), nil
}

// ParsePagination reads the page and limit query values. Missing values take
// the defaults; anything non-numeric, below 1, a limit above MaxLimit, or a
// page whose offset would overflow int is rejected.
func ParsePagination(r *http.Request) (page, limit int, err error) {
	page, limit = DefaultPage, DefaultLimit
	q := r.URL.Query()

	if v := q.Get("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page < 1 {
			return 0, 0, ErrInvalidPagination
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > MaxLimit {
			return 0, 0, ErrInvalidPagination
		}
	}
	if page > MaxPage(limit) {
		return 0, 0, ErrInvalidPagination
	}
	return page, limit, nil
}

// MaxPage is the largest page for which Offset(page, limit) fits in an int.
func MaxPage(limit int) int {
	if limit <= 0 {
		return 0
	}
	q := math.MaxInt / limit
	if q == math.MaxInt {
		return q
	}
	return q + 1
}

func Offset(page, limit int) int {
	return (page - 1) * limit
}

func TotalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
