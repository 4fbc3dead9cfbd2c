package service

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod      = 30
	totpSkew        = 1
	totpSecretBytes = 20
)

var b32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTPEngine genera secretos y valida códigos TOTP.
type TOTPEngine interface {
	GenerateSecret() (string, error)
	ProvisioningURI(account, issuer, secret string) (string, error)
	VerifyCode(code, secret string) bool
}

// OTPEngine implementa TOTPEngine con pquerna/otp: 6 dígitos, SHA1, 30s,
// acepta la ventana actual y una a cada lado.
type OTPEngine struct {
	now func() time.Time
}

func NewOTPEngine() *OTPEngine {
	return &OTPEngine{now: time.Now}
}

func (e *OTPEngine) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func (e *OTPEngine) GenerateSecret() (string, error) {
	buf := make([]byte, totpSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return b32NoPadding.EncodeToString(buf), nil
}

// ProvisioningURI es determinística para (account, issuer, secret).
func (e *OTPEngine) ProvisioningURI(account, issuer, secret string) (string, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      totpPeriod,
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

func (e *OTPEngine) VerifyCode(code, secret string) bool {
	code = strings.TrimSpace(code)
	if len(code) != 6 || strings.TrimSpace(secret) == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, normalizeSecret(secret), e.now().UTC(), e.validateOpts())
	return err == nil && ok
}

func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.TrimRight(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""), "="))
}

func decodeSecret(secret string) ([]byte, error) {
	normalized := normalizeSecret(secret)
	if normalized == "" {
		return nil, errors.New("totp secret is empty")
	}
	return b32NoPadding.DecodeString(normalized)
}
