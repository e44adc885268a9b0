package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultCredits is the credit balance given to every new identity.
const DefaultCredits = 10

// StagedIdentity is an unverified registration waiting for its OTP. It is
// stored in the tempusers collection and expires at OTPExpiry.
type StagedIdentity struct {
	ID           primitive.ObjectID `json:"-"         bson:"_id,omitempty"`
	Name         string             `json:"name"      bson:"name"`
	Email        string             `json:"email"     bson:"email"`
	PasswordHash string             `json:"-"         bson:"password"` // never serialize
	OTP          string             `json:"-"         bson:"otp"`      // delivered by email only
	OTPExpiry    time.Time          `json:"otpExpiry" bson:"otp_expiry"`
}

// Expired reports whether the OTP window has closed at now.
func (s *StagedIdentity) Expired(now time.Time) bool {
	return now.After(s.OTPExpiry)
}

// Identity is a verified user stored in the users collection.
type Identity struct {
	ID           primitive.ObjectID `json:"id"        bson:"_id,omitempty"`
	Name         string             `json:"name"      bson:"name"`
	Email        string             `json:"email"     bson:"email"`
	PasswordHash string             `json:"-"         bson:"password"`
	Credits      int                `json:"credits"   bson:"credits"`
	ImageURL     string             `json:"imageUrl"  bson:"image_url"`
	ImageKey     string             `json:"-"         bson:"image_key"`
	CreatedAt    time.Time          `json:"createdAt" bson:"created_at"`
}

// RegisterRequest is the JSON body for POST /users/register.
type RegisterRequest struct {
	Name     string `json:"name"     validate:"required"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"min=6"`
}

// VerifyRequest is the JSON body for POST /users/verify.
type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp"   validate:"required"`
}

// ResendRequest is the JSON body for POST /users/resendotp.
type ResendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// LoginRequest is the JSON body for POST /users/login.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
