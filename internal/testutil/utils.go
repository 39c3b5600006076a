package testutil

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// SignToken issues an HS256 token for userId the way the account service
// does.
func SignToken(t *testing.T, key []byte, userId int, exp time.Duration) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user-id": userId,
		"exp":     time.Now().Add(exp).Unix(),
	})
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
