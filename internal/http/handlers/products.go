package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/storehub/server/internal/middleware"
	"github.com/storehub/server/internal/model"
	"github.com/storehub/server/internal/store"
)

// ProductHandler serves the branch-scoped inventory catalog. These endpoints
// are persistence glue: equality-filtered record-store calls plus tenancy
// checks, no business logic.
type ProductHandler struct {
	store store.RecordStore
}

// NewProductHandler creates a new product handler
func NewProductHandler(st store.RecordStore) *ProductHandler {
	return &ProductHandler{store: st}
}

type productRequest struct {
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stock_quantity"`
	Description   string  `json:"description"`
}

type productResponse struct {
	ProductID     string  `json:"product_id"`
	BranchID      string  `json:"branch_id"`
	Name          string  `json:"name"`
	Category      string  `json:"category,omitempty"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stock_quantity"`
	Description   string  `json:"description,omitempty"`
	IsActive      bool    `json:"is_active"`
	CreatedAt     string  `json:"created_at"`
}

func toProductResponse(p model.Product) productResponse {
	return productResponse{
		ProductID:     p.ProductID,
		BranchID:      p.BranchID,
		Name:          p.Name,
		Category:      p.Category,
		Price:         p.Price,
		StockQuantity: p.StockQuantity,
		Description:   p.Description,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// HandleList handles GET /products
func (h *ProductHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	filters := store.Filters{"branch_id": ident.BranchID}
	if category := r.URL.Query().Get("category"); category != "" {
		filters["category"] = category
	}

	recs, err := h.store.SelectAll(r.Context(), model.TableProducts, filters)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	out := make([]productResponse, 0, len(recs))
	for _, rec := range recs {
		p, err := model.ProductFromRecord(rec)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		out = append(out, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleCreate handles POST /products (admin only)
func (h *ProductHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Price <= 0 {
		respondWithError(w, http.StatusBadRequest, "price must be positive")
		return
	}
	if req.StockQuantity < 0 {
		respondWithError(w, http.StatusBadRequest, "stock_quantity must not be negative")
		return
	}

	now := time.Now()
	rec, err := h.store.Insert(r.Context(), model.TableProducts, store.Record{
		"product_id":     uuid.NewString(),
		"branch_id":      ident.BranchID,
		"name":           req.Name,
		"category":       req.Category,
		"price":          req.Price,
		"stock_quantity": req.StockQuantity,
		"description":    req.Description,
		"is_active":      true,
		"created_at":     now,
		"updated_at":     now,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	p, err := model.ProductFromRecord(rec)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

// HandleGet handles GET /products/{productID}
func (h *ProductHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedProduct(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

// HandleUpdate handles PUT /products/{productID} (admin only)
func (h *ProductHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedProduct(w, r)
	if !ok {
		return
	}

	var req struct {
		Name          *string  `json:"name"`
		Category      *string  `json:"category"`
		Price         *float64 `json:"price"`
		StockQuantity *int     `json:"stock_quantity"`
		Description   *string  `json:"description"`
		IsActive      *bool    `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := store.Record{"updated_at": time.Now()}
	if req.Name != nil {
		patch["name"] = *req.Name
	}
	if req.Category != nil {
		patch["category"] = *req.Category
	}
	if req.Price != nil {
		if *req.Price <= 0 {
			respondWithError(w, http.StatusBadRequest, "price must be positive")
			return
		}
		patch["price"] = *req.Price
	}
	if req.StockQuantity != nil {
		if *req.StockQuantity < 0 {
			respondWithError(w, http.StatusBadRequest, "stock_quantity must not be negative")
			return
		}
		patch["stock_quantity"] = *req.StockQuantity
	}
	if req.Description != nil {
		patch["description"] = *req.Description
	}
	if req.IsActive != nil {
		patch["is_active"] = *req.IsActive
	}

	rec, err := h.store.Update(r.Context(), model.TableProducts,
		store.Filters{"product_id": p.ProductID}, patch)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if rec == nil {
		respondWithError(w, http.StatusNotFound, "product not found")
		return
	}
	updated, err := model.ProductFromRecord(rec)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(updated))
}

// HandleDelete handles DELETE /products/{productID} (admin only). Removes the
// product and all linked offers.
func (h *ProductHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedProduct(w, r)
	if !ok {
		return
	}

	if _, err := h.store.Delete(r.Context(), model.TableOffers, store.Filters{"product_id": p.ProductID}); err != nil {
		respondServiceError(w, err)
		return
	}
	if _, err := h.store.Delete(r.Context(), model.TableProducts, store.Filters{"product_id": p.ProductID}); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// offerRoutes maps URL segments to stored offer types, so the delete route
// can stay generic the way the add/update routes are typed.
var offerRoutes = map[string]string{
	"credit-card-offers": model.OfferTypeCreditCard,
	"debit-card-offers":  model.OfferTypeDebitCard,
	"upi-offers":         model.OfferTypeUPI,
	"emi-plans":          model.OfferTypeEMI,
}

type cardOfferRequest struct {
	BankName          string  `json:"bank_name"`
	BankLogoURL       string  `json:"bank_logo_url"`
	DiscountPercent   float64 `json:"discount_percent"`
	MaxDiscountAmount float64 `json:"max_discount_amount"`
	MinPurchaseAmount float64 `json:"min_purchase_amount"`
	OfferText         string  `json:"offer_text"`
}

func (req cardOfferRequest) validate() (string, bool) {
	if req.BankName == "" {
		return "bank_name is required", false
	}
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return "discount_percent must be between 0 and 100", false
	}
	return "", true
}

func (req cardOfferRequest) fields() store.Record {
	return store.Record{
		"provider_name":       req.BankName,
		"provider_logo_url":   req.BankLogoURL,
		"discount_percent":    req.DiscountPercent,
		"max_discount_amount": req.MaxDiscountAmount,
		"min_purchase_amount": req.MinPurchaseAmount,
		"offer_text":          req.OfferText,
	}
}

type upiOfferRequest struct {
	PlatformName      string  `json:"platform_name"`
	PlatformLogoURL   string  `json:"platform_logo_url"`
	DiscountPercent   float64 `json:"discount_percent"`
	MaxDiscountAmount float64 `json:"max_discount_amount"`
	MinPurchaseAmount float64 `json:"min_purchase_amount"`
	OfferText         string  `json:"offer_text"`
}

func (req upiOfferRequest) validate() (string, bool) {
	if req.PlatformName == "" {
		return "platform_name is required", false
	}
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return "discount_percent must be between 0 and 100", false
	}
	return "", true
}

func (req upiOfferRequest) fields() store.Record {
	return store.Record{
		"provider_name":       req.PlatformName,
		"provider_logo_url":   req.PlatformLogoURL,
		"discount_percent":    req.DiscountPercent,
		"max_discount_amount": req.MaxDiscountAmount,
		"min_purchase_amount": req.MinPurchaseAmount,
		"offer_text":          req.OfferText,
	}
}

type emiPlanRequest struct {
	InstituteName     string  `json:"institute_name"`
	InstituteLogoURL  string  `json:"institute_logo_url"`
	TenureMonths      int     `json:"tenure_months"`
	InterestRatePA    float64 `json:"interest_rate_pa"`
	ProcessingFee     float64 `json:"processing_fee"`
	IsNoCostEMI       bool    `json:"is_no_cost_emi"`
	MinPurchaseAmount float64 `json:"min_purchase_amount"`
	OfferText         string  `json:"offer_text"`
}

func (req emiPlanRequest) validate() (string, bool) {
	if req.InstituteName == "" {
		return "institute_name is required", false
	}
	if req.TenureMonths <= 0 {
		return "tenure_months must be positive", false
	}
	if req.InterestRatePA < 0 {
		return "interest_rate_pa must not be negative", false
	}
	return "", true
}

func (req emiPlanRequest) fields() store.Record {
	return store.Record{
		"provider_name":       req.InstituteName,
		"provider_logo_url":   req.InstituteLogoURL,
		"tenure_months":       req.TenureMonths,
		"interest_rate":       req.InterestRatePA,
		"processing_fee":      req.ProcessingFee,
		"is_no_cost_emi":      req.IsNoCostEMI,
		"min_purchase_amount": req.MinPurchaseAmount,
		"offer_text":          req.OfferText,
	}
}

// offerResponse is the normalized offer shape every offer endpoint returns.
// Type-irrelevant numeric fields are omitted at their zero value.
type offerResponse struct {
	ID                string  `json:"id"`
	ProductID         string  `json:"product_id"`
	Type              string  `json:"type"`
	DisplayName       string  `json:"display_name"`
	DisplayLogo       string  `json:"display_logo,omitempty"`
	DiscountPercent   float64 `json:"discount_percent,omitempty"`
	MaxDiscountAmount float64 `json:"max_discount_amount,omitempty"`
	MinPurchaseAmount float64 `json:"min_purchase_amount,omitempty"`
	InterestRatePA    float64 `json:"interest_rate_pa,omitempty"`
	TenureMonths      int     `json:"tenure_months,omitempty"`
	ProcessingFee     float64 `json:"processing_fee,omitempty"`
	IsNoCostEMI       bool    `json:"is_no_cost_emi,omitempty"`
	OfferText         string  `json:"offer_text,omitempty"`
	IsActive          bool    `json:"is_active"`
	CreatedAt         string  `json:"created_at,omitempty"`
}

// shortOfferType renders the stored type the way clients group offers.
func shortOfferType(t string) string {
	switch t {
	case model.OfferTypeCreditCard:
		return "credit"
	case model.OfferTypeDebitCard:
		return "debit"
	default:
		return t
	}
}

func toOfferResponse(o model.Offer) offerResponse {
	resp := offerResponse{
		ID:                o.OfferID,
		ProductID:         o.ProductID,
		Type:              shortOfferType(o.OfferType),
		DisplayName:       o.ProviderName,
		DisplayLogo:       o.ProviderLogoURL,
		DiscountPercent:   o.DiscountPercent,
		MaxDiscountAmount: o.MaxDiscountAmount,
		MinPurchaseAmount: o.MinPurchaseAmount,
		InterestRatePA:    o.InterestRate,
		TenureMonths:      o.TenureMonths,
		ProcessingFee:     o.ProcessingFee,
		IsNoCostEMI:       o.IsNoCostEMI,
		OfferText:         o.OfferText,
		IsActive:          o.IsActive,
	}
	if !o.CreatedAt.IsZero() {
		resp.CreatedAt = o.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// HandleAllOffers handles GET /products/{productID}/all-offers. Every offer
// type comes back in one normalized list.
func (h *ProductHandler) HandleAllOffers(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedProduct(w, r)
	if !ok {
		return
	}

	recs, err := h.store.SelectAll(r.Context(), model.TableOffers, store.Filters{"product_id": p.ProductID})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]offerResponse, 0, len(recs))
	for _, rec := range recs {
		o, err := model.OfferFromRecord(rec)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		out = append(out, toOfferResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleAddCardOffer serves POST /products/{productID}/credit-card-offers and
// its debit sibling (admin only). Both card flavors share one payload shape.
func (h *ProductHandler) HandleAddCardOffer(offerType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardOfferRequest
		if !decodeOfferBody(w, r, &req) {
			return
		}
		if msg, ok := req.validate(); !ok {
			respondWithError(w, http.StatusBadRequest, msg)
			return
		}
		h.insertOffer(w, r, offerType, req.fields())
	}
}

// HandleUpdateCardOffer serves PUT /products/{productID}/credit-card-offers/{offerID}
// and its debit sibling (admin only).
func (h *ProductHandler) HandleUpdateCardOffer(offerType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardOfferRequest
		if !decodeOfferBody(w, r, &req) {
			return
		}
		if msg, ok := req.validate(); !ok {
			respondWithError(w, http.StatusBadRequest, msg)
			return
		}
		h.updateOffer(w, r, offerType, req.fields())
	}
}

// HandleAddUPIOffer handles POST /products/{productID}/upi-offers (admin only)
func (h *ProductHandler) HandleAddUPIOffer(w http.ResponseWriter, r *http.Request) {
	var req upiOfferRequest
	if !decodeOfferBody(w, r, &req) {
		return
	}
	if msg, ok := req.validate(); !ok {
		respondWithError(w, http.StatusBadRequest, msg)
		return
	}
	h.insertOffer(w, r, model.OfferTypeUPI, req.fields())
}

// HandleUpdateUPIOffer handles PUT /products/{productID}/upi-offers/{offerID} (admin only)
func (h *ProductHandler) HandleUpdateUPIOffer(w http.ResponseWriter, r *http.Request) {
	var req upiOfferRequest
	if !decodeOfferBody(w, r, &req) {
		return
	}
	if msg, ok := req.validate(); !ok {
		respondWithError(w, http.StatusBadRequest, msg)
		return
	}
	h.updateOffer(w, r, model.OfferTypeUPI, req.fields())
}

// HandleAddEMIPlan handles POST /products/{productID}/emi-plans (admin only)
func (h *ProductHandler) HandleAddEMIPlan(w http.ResponseWriter, r *http.Request) {
	var req emiPlanRequest
	if !decodeOfferBody(w, r, &req) {
		return
	}
	if msg, ok := req.validate(); !ok {
		respondWithError(w, http.StatusBadRequest, msg)
		return
	}
	h.insertOffer(w, r, model.OfferTypeEMI, req.fields())
}

// HandleUpdateEMIPlan handles PUT /products/{productID}/emi-plans/{offerID} (admin only)
func (h *ProductHandler) HandleUpdateEMIPlan(w http.ResponseWriter, r *http.Request) {
	var req emiPlanRequest
	if !decodeOfferBody(w, r, &req) {
		return
	}
	if msg, ok := req.validate(); !ok {
		respondWithError(w, http.StatusBadRequest, msg)
		return
	}
	h.updateOffer(w, r, model.OfferTypeEMI, req.fields())
}

// HandleDeleteOffer handles DELETE /products/{productID}/{offerRoute}/{offerID}
// (admin only). One route covers all four offer types.
func (h *ProductHandler) HandleDeleteOffer(w http.ResponseWriter, r *http.Request) {
	offerType, ok := offerRoutes[chi.URLParam(r, "offerRoute")]
	if !ok {
		respondWithError(w, http.StatusBadRequest, "unknown offer type")
		return
	}
	p, ok := h.ownedProduct(w, r)
	if !ok {
		return
	}

	removed, err := h.store.Delete(r.Context(), model.TableOffers, store.Filters{
		"offer_id":   chi.URLParam(r, "offerID"),
		"product_id": p.ProductID,
		"offer_type": offerType,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !removed {
		respondWithError(w, http.StatusNotFound, "offer not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeOfferBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *ProductHandler) insertOffer(w http.ResponseWriter, r *http.Request, offerType string, fields store.Record) {
	p, ok := h.ownedProduct(w, r)
	if !ok {
		return
	}

	fields["offer_id"] = uuid.NewString()
	fields["product_id"] = p.ProductID
	fields["offer_type"] = offerType
	fields["is_active"] = true
	fields["created_at"] = time.Now()

	rec, err := h.store.Insert(r.Context(), model.TableOffers, fields)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	o, err := model.OfferFromRecord(rec)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOfferResponse(o))
}

// updateOffer replaces the offer's payload fields. The type filter keeps a
// credit-card route from touching, say, an EMI plan with a guessed ID.
func (h *ProductHandler) updateOffer(w http.ResponseWriter, r *http.Request, offerType string, patch store.Record) {
	p, ok := h.ownedProduct(w, r)
	if !ok {
		return
	}

	rec, err := h.store.Update(r.Context(), model.TableOffers, store.Filters{
		"offer_id":   chi.URLParam(r, "offerID"),
		"product_id": p.ProductID,
		"offer_type": offerType,
	}, patch)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if rec == nil {
		respondWithError(w, http.StatusNotFound, "offer not found")
		return
	}
	o, err := model.OfferFromRecord(rec)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferResponse(o))
}

// ownedProduct loads the product in the URL and enforces branch ownership.
// Products of other branches read as not-found, never as forbidden.
func (h *ProductHandler) ownedProduct(w http.ResponseWriter, r *http.Request) (model.Product, bool) {
	ident, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
		return model.Product{}, false
	}

	productID := chi.URLParam(r, "productID")
	rec, err := h.store.SelectOne(r.Context(), model.TableProducts, store.Filters{
		"product_id": productID,
		"branch_id":  ident.BranchID,
	})
	if err != nil {
		respondServiceError(w, err)
		return model.Product{}, false
	}
	if rec == nil {
		respondWithError(w, http.StatusNotFound, "product not found")
		return model.Product{}, false
	}
	p, err := model.ProductFromRecord(rec)
	if err != nil {
		respondServiceError(w, err)
		return model.Product{}, false
	}
	return p, true
}
