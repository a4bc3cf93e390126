package tests

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type productPayload struct {
	ProductID     string  `json:"product_id"`
	BranchID      string  `json:"branch_id"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stock_quantity"`
	IsActive      bool    `json:"is_active"`
}

type offerPayload struct {
	ID              string  `json:"id"`
	ProductID       string  `json:"product_id"`
	Type            string  `json:"type"`
	DisplayName     string  `json:"display_name"`
	DisplayLogo     string  `json:"display_logo"`
	DiscountPercent float64 `json:"discount_percent"`
	TenureMonths    int     `json:"tenure_months"`
	InterestRatePA  float64 `json:"interest_rate_pa"`
	IsNoCostEMI     bool    `json:"is_no_cost_emi"`
}

// inviteStaff redeems a fresh invite and returns the staff session.
func inviteStaff(t *testing.T, ts *TestServer, admin tokenPayload, email string) tokenPayload {
	t.Helper()

	resp, body := ts.postJSON(t, "/auth/send-invite", admin.AccessToken, map[string]string{"email": email})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	var invite struct {
		InviteURL string `json:"invite_url"`
	}
	decodeInto(t, body, &invite)
	token := invite.InviteURL[strings.Index(invite.InviteURL, "token=")+len("token="):]

	resp, body = ts.postJSON(t, "/auth/invite-signup", "", map[string]string{
		"token":            token,
		"name":             "Staff",
		"password":         password,
		"confirm_password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	var staff tokenPayload
	decodeInto(t, body, &staff)
	return staff
}

func TestProductLifecycle(t *testing.T) {
	ts := newTestServer(t)
	admin := signupAndVerify(t, ts)
	staff := inviteStaff(t, ts, admin, staffEmail)

	// Staff can read but not write.
	resp, _ := ts.postJSON(t, "/products", staff.AccessToken, map[string]any{
		"name": "Blocked", "price": 1,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := ts.postJSON(t, "/products", admin.AccessToken, map[string]any{
		"name":           "Refrigerator X200",
		"category":       "appliances",
		"price":          42999.0,
		"stock_quantity": 12,
		"description":    "Double door, frost free",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	var created productPayload
	decodeInto(t, body, &created)
	assert.Equal(t, admin.User.BranchID, created.BranchID)
	assert.True(t, created.IsActive)
	require.NotEmpty(t, created.ProductID)

	// Listing and category filter.
	resp, body = ts.postJSON(t, "/products", admin.AccessToken, map[string]any{
		"name": "Mixer", "category": "kitchen", "price": 2999.0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = ts.getJSON(t, "/products", staff.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []productPayload
	decodeInto(t, body, &listed)
	assert.Len(t, listed, 2)

	resp, body = ts.getJSON(t, "/products?category=appliances", staff.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, body, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "Refrigerator X200", listed[0].Name)

	// Partial update touches only the sent fields.
	resp, body = ts.doJSON(t, http.MethodPut, "/products/"+created.ProductID, admin.AccessToken, map[string]any{
		"price": 39999.0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	var updated productPayload
	decodeInto(t, body, &updated)
	assert.Equal(t, 39999.0, updated.Price)
	assert.Equal(t, "Refrigerator X200", updated.Name)
	assert.Equal(t, 12, updated.StockQuantity)

	// Offers nest under the product.
	resp, body = ts.postJSON(t, "/products/"+created.ProductID+"/emi-plans", admin.AccessToken, map[string]any{
		"institute_name":   "EasyFinance",
		"tenure_months":    12,
		"interest_rate_pa": 11.5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	var offer offerPayload
	decodeInto(t, body, &offer)
	assert.Equal(t, created.ProductID, offer.ProductID)
	assert.Equal(t, "emi", offer.Type)

	resp, body = ts.getJSON(t, "/products/"+created.ProductID+"/all-offers", staff.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var offers []offerPayload
	decodeInto(t, body, &offers)
	require.Len(t, offers, 1)
	assert.Equal(t, "EasyFinance", offers[0].DisplayName)

	resp, _ = ts.doJSON(t, http.MethodDelete,
		fmt.Sprintf("/products/%s/emi-plans/%s", created.ProductID, offer.ID), admin.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Deleting the product removes it from the catalog.
	resp, _ = ts.doJSON(t, http.MethodDelete, "/products/"+created.ProductID, admin.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = ts.getJSON(t, "/products/"+created.ProductID, admin.AccessToken)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOfferCatalogPerType(t *testing.T) {
	ts := newTestServer(t)
	admin := signupAndVerify(t, ts)

	resp, body := ts.postJSON(t, "/products", admin.AccessToken, map[string]any{
		"name": "Washing Machine", "price": 31999.0, "stock_quantity": 4,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	var product productPayload
	decodeInto(t, body, &product)
	base := "/products/" + product.ProductID

	// One offer of each type.
	resp, body = ts.postJSON(t, base+"/credit-card-offers", admin.AccessToken, map[string]any{
		"bank_name": "HDFC", "bank_logo_url": "https://cdn.example.com/hdfc.png", "discount_percent": 10.0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	var credit offerPayload
	decodeInto(t, body, &credit)
	assert.Equal(t, "credit", credit.Type)
	assert.Equal(t, "HDFC", credit.DisplayName)
	assert.Equal(t, "https://cdn.example.com/hdfc.png", credit.DisplayLogo)

	resp, body = ts.postJSON(t, base+"/debit-card-offers", admin.AccessToken, map[string]any{
		"bank_name": "SBI", "discount_percent": 5.0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	var debit offerPayload
	decodeInto(t, body, &debit)
	assert.Equal(t, "debit", debit.Type)

	resp, body = ts.postJSON(t, base+"/upi-offers", admin.AccessToken, map[string]any{
		"platform_name": "PhonePe", "discount_percent": 2.5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	var upi offerPayload
	decodeInto(t, body, &upi)
	assert.Equal(t, "upi", upi.Type)
	assert.Equal(t, "PhonePe", upi.DisplayName)

	resp, body = ts.postJSON(t, base+"/emi-plans", admin.AccessToken, map[string]any{
		"institute_name": "Bajaj Finserv", "tenure_months": 9, "is_no_cost_emi": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	var emi offerPayload
	decodeInto(t, body, &emi)
	assert.Equal(t, "emi", emi.Type)
	assert.True(t, emi.IsNoCostEMI)

	// The consolidated view normalizes all four into one list.
	resp, body = ts.getJSON(t, base+"/all-offers", admin.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []offerPayload
	decodeInto(t, body, &all)
	require.Len(t, all, 4)
	types := make(map[string]string, len(all))
	for _, o := range all {
		types[o.Type] = o.DisplayName
	}
	assert.Equal(t, map[string]string{
		"credit": "HDFC", "debit": "SBI", "upi": "PhonePe", "emi": "Bajaj Finserv",
	}, types)

	// Updating replaces the offer's payload through its typed route.
	resp, body = ts.doJSON(t, http.MethodPut, base+"/credit-card-offers/"+credit.ID, admin.AccessToken, map[string]any{
		"bank_name": "HDFC", "discount_percent": 12.5,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	decodeInto(t, body, &credit)
	assert.Equal(t, 12.5, credit.DiscountPercent)

	// An offer is unreachable through another type's route.
	resp, _ = ts.doJSON(t, http.MethodPut, base+"/upi-offers/"+credit.ID, admin.AccessToken, map[string]any{
		"platform_name": "GPay",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = ts.doJSON(t, http.MethodDelete, base+"/emi-plans/"+credit.ID, admin.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.doJSON(t, http.MethodDelete, base+"/gift-card-offers/"+credit.ID, admin.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.doJSON(t, http.MethodDelete, base+"/credit-card-offers/"+credit.ID, admin.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = ts.getJSON(t, base+"/all-offers", admin.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, body, &all)
	assert.Len(t, all, 3)
}

func TestProductsAreBranchScoped(t *testing.T) {
	ts := newTestServer(t)
	admin := signupAndVerify(t, ts)

	resp, body := ts.postJSON(t, "/products", admin.AccessToken, map[string]any{
		"name": "Private Item", "price": 100.0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created productPayload
	decodeInto(t, body, &created)

	// A second tenant signs up and verifies independently.
	resp, body = ts.postJSON(t, "/auth/first-signup", "", map[string]string{
		"name":             "Other Owner",
		"email":            "other@example.com",
		"password":         password,
		"confirm_password": password,
		"store_name":       "Other Store",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	code := ts.LiveOTP(t, "other@example.com", "verification")
	resp, _ = ts.postJSON(t, "/auth/verify-otp", "", map[string]string{
		"email": "other@example.com", "otp": code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = ts.postJSON(t, "/auth/login", "", map[string]string{
		"email": "other@example.com", "password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var other tokenPayload
	decodeInto(t, body, &other)

	// The other tenant sees an empty catalog although a product exists.
	resp, body = ts.getJSON(t, "/products", other.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []productPayload
	decodeInto(t, body, &listed)
	assert.Empty(t, listed)

	// Cross-branch access reads as not-found, never as forbidden.
	resp, _ = ts.getJSON(t, "/products/"+created.ProductID, other.AccessToken)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = ts.doJSON(t, http.MethodDelete, "/products/"+created.ProductID, other.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBranchSettingsAndStaff(t *testing.T) {
	ts := newTestServer(t)
	admin := signupAndVerify(t, ts)
	staff := inviteStaff(t, ts, admin, staffEmail)

	resp, body := ts.getJSON(t, "/branches/settings", admin.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Main Street Store")

	resp, body = ts.doJSON(t, http.MethodPut, "/branches/settings", admin.AccessToken, map[string]string{
		"branch_name": "Renamed Store",
		"city":        "Mumbai",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	assert.Contains(t, body, "Renamed Store")
	assert.Contains(t, body, "Mumbai")

	resp, body = ts.getJSON(t, "/branches/users", admin.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var roster []userPayload
	decodeInto(t, body, &roster)
	assert.Len(t, roster, 2)

	// Branch surfaces are admin-only.
	resp, _ = ts.getJSON(t, "/branches/settings", staff.AccessToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStaffManagement(t *testing.T) {
	ts := newTestServer(t)
	admin := signupAndVerify(t, ts)
	staff := inviteStaff(t, ts, admin, staffEmail)

	// Self-deactivation is blocked.
	resp, _ := ts.doJSON(t, http.MethodPut, "/users/"+admin.User.UserID+"/toggle-active", admin.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Deactivated staff loses access on the next request.
	resp, body := ts.doJSON(t, http.MethodPut, "/users/"+staff.User.UserID+"/toggle-active", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	var toggled userPayload
	decodeInto(t, body, &toggled)
	assert.False(t, toggled.IsActive)

	resp, _ = ts.getJSON(t, "/users/me", staff.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Reactivate and promote.
	resp, _ = ts.doJSON(t, http.MethodPut, "/users/"+staff.User.UserID+"/toggle-active", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.doJSON(t, http.MethodPut, "/users/"+staff.User.UserID+"/make-admin", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var promoted userPayload
	decodeInto(t, body, &promoted)
	assert.True(t, promoted.IsAdmin)

	// The promotion takes effect without reissuing the token.
	resp, _ = ts.getJSON(t, "/branches/settings", staff.AccessToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Profile rename works for any authenticated user.
	resp, body = ts.doJSON(t, http.MethodPut, "/users/profile", staff.AccessToken, map[string]string{
		"name": "Renamed Staff",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Renamed Staff")
}

func TestDashboardSummary(t *testing.T) {
	ts := newTestServer(t)
	admin := signupAndVerify(t, ts)
	inviteStaff(t, ts, admin, staffEmail)

	for i := 0; i < 3; i++ {
		resp, _ := ts.postJSON(t, "/products", admin.AccessToken, map[string]any{
			"name": fmt.Sprintf("Item %d", i), "price": 10.0,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := ts.getJSON(t, "/dashboard/summary", admin.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	var summary struct {
		TotalUsers     int  `json:"total_users"`
		TotalProducts  int  `json:"total_products"`
		ActiveProducts int  `json:"active_products"`
		PendingInvites int  `json:"pending_invites"`
		CanManageUsers bool `json:"can_manage_users"`
	}
	decodeInto(t, body, &summary)
	assert.Equal(t, 2, summary.TotalUsers)
	assert.Equal(t, 3, summary.TotalProducts)
	assert.Equal(t, 3, summary.ActiveProducts)
	assert.Equal(t, 0, summary.PendingInvites)
	assert.True(t, summary.CanManageUsers)
}
