package checkout

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rng-salon/salon-pos/internal/catalog"
	"github.com/rng-salon/salon-pos/internal/membership"
)

var testNow = time.Date(2025, 7, 14, 10, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func serviceEntry(name, price string) catalog.Entry {
	return catalog.Entry{ID: uuid.New(), Kind: catalog.KindService, Name: name, UnitPrice: d(price)}
}

func productEntry(name, price string, stock int) catalog.Entry {
	return catalog.Entry{ID: uuid.New(), Kind: catalog.KindProduct, Name: name, UnitPrice: d(price), StockQuantity: &stock}
}

func membershipEntry(name, price string) catalog.Entry {
	return catalog.Entry{ID: uuid.New(), Kind: catalog.KindMembership, Name: name, UnitPrice: d(price)}
}

func regularTerms(payable string) Terms {
	return Terms{PayableTotal: d(payable), MembershipPayable: zero, MembershipBalance: zero}
}

func requireAmount(t testing.TB, a Allocation, m Method, want string) {
	t.Helper()
	require.True(t, a.Amount(m).Equal(d(want)), "%s = %s, want %s", m, a.Amount(m), want)
}

var (
	testClient  = uuid.MustParse("8f14e45f-ceea-467f-a0e6-3c1f0b7a2d11")
	testStylist = uuid.MustParse("c9f0f895-fb98-4b91-9d4a-1a2b3c4d5e6f")
)

func activeAccount(balance string) *membership.Account {
	expires := testNow.AddDate(0, 6, 0)
	return &membership.Account{
		ID:             uuid.New(),
		ClientID:       testClient,
		TierName:       "Gold",
		CurrentBalance: d(balance),
		ExpiresAt:      &expires,
	}
}
