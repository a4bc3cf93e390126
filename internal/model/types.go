package model

import (
	"fmt"
	"time"

	"github.com/storehub/server/internal/store"
)

// Table names used with the record store.
const (
	TableBranches = "branches"
	TableUsers    = "users"
	TableInvites  = "invites"
	TableOTP      = "otp_verifications"
	TableProducts = "products"
	TableOffers   = "product_offers"
)

// OTP purposes.
const (
	PurposeVerification  = "verification"
	PurposePasswordReset = "password_reset"
)

// ValidPurpose reports whether p is a known OTP purpose.
func ValidPurpose(p string) bool {
	return p == PurposeVerification || p == PurposePasswordReset
}

// Identity is the normalized authenticated caller, produced once per request
// by the session resolver. Downstream code never sees raw store records.
type Identity struct {
	UserID   string
	BranchID string
	Email    string
	IsAdmin  bool
}

// User is a branch-scoped account.
type User struct {
	UserID       string
	BranchID     string
	Name         string
	Email        string
	PasswordHash string
	IsAdmin      bool
	IsActive     bool
	IsVerified   bool
	CreatedAt    time.Time
}

// UserFromRecord validates and converts a users row.
func UserFromRecord(rec store.Record) (User, error) {
	if err := requireFields(rec, "user_id", "email"); err != nil {
		return User{}, fmt.Errorf("users row: %w", err)
	}
	u := User{
		UserID:       rec.String("user_id"),
		BranchID:     rec.String("branch_id"),
		Name:         rec.String("name"),
		Email:        rec.String("email"),
		PasswordHash: rec.String("password_hash"),
		IsAdmin:      rec.Bool("is_admin"),
		IsActive:     rec.Bool("is_active"),
		IsVerified:   rec.Bool("is_verified"),
	}
	u.CreatedAt, _ = rec.Time("created_at")
	return u, nil
}

// Branch is the tenant scoping boundary for users, inventory, and invites.
type Branch struct {
	BranchID   string
	BranchName string
	Address    string
	City       string
	CreatedAt  time.Time
}

// BranchFromRecord validates and converts a branches row.
func BranchFromRecord(rec store.Record) (Branch, error) {
	if err := requireFields(rec, "branch_id", "branch_name"); err != nil {
		return Branch{}, fmt.Errorf("branches row: %w", err)
	}
	b := Branch{
		BranchID:   rec.String("branch_id"),
		BranchName: rec.String("branch_name"),
		Address:    rec.String("address"),
		City:       rec.String("city"),
	}
	b.CreatedAt, _ = rec.Time("created_at")
	return b, nil
}

// Invite is a single-use staff invitation bound to a branch.
type Invite struct {
	InviteID  string
	Email     string
	Token     string
	BranchID  string
	InvitedBy string
	ExpiresAt time.Time
	IsUsed    bool
	CreatedAt time.Time
}

// InviteFromRecord validates and converts an invites row.
func InviteFromRecord(rec store.Record) (Invite, error) {
	if err := requireFields(rec, "invite_id", "email", "token"); err != nil {
		return Invite{}, fmt.Errorf("invites row: %w", err)
	}
	inv := Invite{
		InviteID:  rec.String("invite_id"),
		Email:     rec.String("email"),
		Token:     rec.String("token"),
		BranchID:  rec.String("branch_id"),
		InvitedBy: rec.String("invited_by"),
		IsUsed:    rec.Bool("is_used"),
	}
	var ok bool
	if inv.ExpiresAt, ok = rec.Time("expires_at"); !ok {
		return Invite{}, fmt.Errorf("invites row: missing expires_at")
	}
	inv.CreatedAt, _ = rec.Time("created_at")
	return inv, nil
}

// OtpRecord is one generated code for an (email, purpose) pair. Superseded
// records are never deleted; they remain as an audit trail.
type OtpRecord struct {
	OtpID       string
	Email       string
	Code        string
	Purpose     string
	Attempts    int
	IsUsed      bool
	UsedAt      *time.Time
	IsExpired   bool
	IsLocked    bool
	LockedUntil *time.Time
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// OtpFromRecord validates and converts an otp_verifications row.
func OtpFromRecord(rec store.Record) (OtpRecord, error) {
	if err := requireFields(rec, "otp_id", "email", "otp", "purpose"); err != nil {
		return OtpRecord{}, fmt.Errorf("otp_verifications row: %w", err)
	}
	o := OtpRecord{
		OtpID:     rec.String("otp_id"),
		Email:     rec.String("email"),
		Code:      rec.String("otp"),
		Purpose:   rec.String("purpose"),
		Attempts:  rec.Int("attempts"),
		IsUsed:    rec.Bool("is_used"),
		IsExpired: rec.Bool("is_expired"),
		IsLocked:  rec.Bool("is_locked"),
	}
	var ok bool
	if o.ExpiresAt, ok = rec.Time("expires_at"); !ok {
		return OtpRecord{}, fmt.Errorf("otp_verifications row: missing expires_at")
	}
	o.CreatedAt, _ = rec.Time("created_at")
	if t, ok := rec.Time("used_at"); ok {
		o.UsedAt = &t
	}
	if t, ok := rec.Time("locked_until"); ok {
		o.LockedUntil = &t
	}
	return o, nil
}

// Product is a catalog item scoped to a branch.
type Product struct {
	ProductID     string
	BranchID      string
	Name          string
	Category      string
	Price         float64
	StockQuantity int
	Description   string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProductFromRecord validates and converts a products row.
func ProductFromRecord(rec store.Record) (Product, error) {
	if err := requireFields(rec, "product_id", "branch_id", "name"); err != nil {
		return Product{}, fmt.Errorf("products row: %w", err)
	}
	p := Product{
		ProductID:     rec.String("product_id"),
		BranchID:      rec.String("branch_id"),
		Name:          rec.String("name"),
		Category:      rec.String("category"),
		Price:         rec.Float("price"),
		StockQuantity: rec.Int("stock_quantity"),
		Description:   rec.String("description"),
		IsActive:      rec.Bool("is_active"),
	}
	p.CreatedAt, _ = rec.Time("created_at")
	p.UpdatedAt, _ = rec.Time("updated_at")
	return p, nil
}

// Offer types stored in product_offers.offer_type. Card and UPI offers carry
// discount fields; EMI plans carry tenure and interest fields instead.
const (
	OfferTypeCreditCard = "credit_card"
	OfferTypeDebitCard  = "debit_card"
	OfferTypeUPI        = "upi"
	OfferTypeEMI        = "emi"
)

// ValidOfferType reports whether t is a known offer type.
func ValidOfferType(t string) bool {
	switch t {
	case OfferTypeCreditCard, OfferTypeDebitCard, OfferTypeUPI, OfferTypeEMI:
		return true
	}
	return false
}

// Offer is a financial offer nested under a product. All four offer types
// share one table; type-irrelevant fields stay at their zero value. The
// amortization math is out of scope; EMI plans are stored and served as-is.
type Offer struct {
	OfferID           string
	ProductID         string
	OfferType         string
	ProviderName      string
	ProviderLogoURL   string
	DiscountPercent   float64
	MaxDiscountAmount float64
	MinPurchaseAmount float64
	InterestRate      float64
	TenureMonths      int
	ProcessingFee     float64
	IsNoCostEMI       bool
	OfferText         string
	IsActive          bool
	CreatedAt         time.Time
}

// OfferFromRecord validates and converts a product_offers row.
func OfferFromRecord(rec store.Record) (Offer, error) {
	if err := requireFields(rec, "offer_id", "product_id", "offer_type"); err != nil {
		return Offer{}, fmt.Errorf("product_offers row: %w", err)
	}
	if t := rec.String("offer_type"); !ValidOfferType(t) {
		return Offer{}, fmt.Errorf("product_offers row: unknown offer_type %q", t)
	}
	o := Offer{
		OfferID:           rec.String("offer_id"),
		ProductID:         rec.String("product_id"),
		OfferType:         rec.String("offer_type"),
		ProviderName:      rec.String("provider_name"),
		ProviderLogoURL:   rec.String("provider_logo_url"),
		DiscountPercent:   rec.Float("discount_percent"),
		MaxDiscountAmount: rec.Float("max_discount_amount"),
		MinPurchaseAmount: rec.Float("min_purchase_amount"),
		InterestRate:      rec.Float("interest_rate"),
		TenureMonths:      rec.Int("tenure_months"),
		ProcessingFee:     rec.Float("processing_fee"),
		IsNoCostEMI:       rec.Bool("is_no_cost_emi"),
		OfferText:         rec.String("offer_text"),
		IsActive:          rec.Bool("is_active"),
	}
	o.CreatedAt, _ = rec.Time("created_at")
	return o, nil
}

func requireFields(rec store.Record, fields ...string) error {
	for _, f := range fields {
		if !rec.Has(f) {
			return fmt.Errorf("missing %s", f)
		}
	}
	return nil
}
