package service

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
)

const tokenBytes = 32

var tokenFormat = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// GenerateToken devuelve 32 bytes aleatorios en hex (64 caracteres).
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func IsValidTokenFormat(token string) bool {
	return tokenFormat.MatchString(token)
}
