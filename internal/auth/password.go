package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password. Costs outside bcrypt's range fall
// back to bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword reports whether plain matches the stored hash.
func VerifyPassword(hashed, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

var (
	placeholderOnce sync.Once
	placeholderHash []byte
)

// BurnPasswordCheck does the bcrypt work of a failed comparison. Login calls
// it for unknown emails so response time does not reveal which accounts exist.
func BurnPasswordCheck(plain string) {
	placeholderOnce.Do(func() {
		placeholderHash, _ = bcrypt.GenerateFromPassword([]byte("itsm-portal-placeholder"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(placeholderHash, []byte(plain))
}
