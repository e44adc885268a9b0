package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// OTP codes are drawn uniformly from [otpMin, otpMin+otpSpan).
const (
	otpMin  = 1000
	otpSpan = 9000
)

// RandomOTP produces 4-digit codes from crypto/rand.
type RandomOTP struct{}

func (RandomOTP) Next() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%d", otpMin+n.Int64()), nil
}
