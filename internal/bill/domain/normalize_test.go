package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

var testNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func TestNormalize_DerivesBalanceFromAmounts(t *testing.T) {
	raw := RawBill{
		ID:              "B-1001",
		ConnectionID:    "C-77",
		DueDate:         "2025-06-15",
		TotalAmount:     i64(45000),
		AmountPaid:      i64(10000),
		PreviousReading: i64(120),
		PresentReading:  i64(145),
	}

	bill, err := Normalize(raw, testNow)
	require.NoError(t, err)

	assert.Equal(t, int64(45000), bill.TotalAmount)
	assert.Equal(t, int64(10000), bill.AmountPaid)
	assert.Equal(t, int64(35000), bill.Balance)
	assert.Equal(t, PaymentStatusPartial, bill.PaymentStatus)
	assert.Equal(t, int64(25), bill.Consumption)
}

func TestNormalize_ExplicitBalanceWins(t *testing.T) {
	raw := RawBill{
		ID:           "B-1002",
		ConnectionID: "C-77",
		DueDate:      "2025-06-15",
		TotalAmount:  i64(50000),
		AmountPaid:   i64(0),
		Balance:      i64(20000),
	}

	bill, err := Normalize(raw, testNow)
	require.NoError(t, err)

	// Explicit balance is preferred; amount_paid is re-derived from it.
	assert.Equal(t, int64(20000), bill.Balance)
	assert.Equal(t, int64(30000), bill.AmountPaid)
	assert.Equal(t, PaymentStatusPartial, bill.PaymentStatus)
}

func TestNormalize_MissingAmountPaidDefaultsToZero(t *testing.T) {
	raw := RawBill{
		ID:           "B-1003",
		ConnectionID: "C-77",
		DueDate:      "2025-06-15",
		TotalAmount:  i64(50000),
	}

	bill, err := Normalize(raw, testNow)
	require.NoError(t, err)

	assert.Equal(t, int64(0), bill.AmountPaid)
	assert.Equal(t, int64(50000), bill.Balance)
	assert.Equal(t, PaymentStatusUnpaid, bill.PaymentStatus)
}

func TestNormalize_HistoricalAliases(t *testing.T) {
	raw := RawBill{
		BillNo:         "B-1004",
		AccountNo:      "C-88",
		DueDate:        "2025-07-01",
		AmountDue:      i64(32000),
		PaidAmount:     i64(32000),
		PrevReading:    i64(10),
		CurrentReading: i64(18),
		PaymentStatus:  "paid",
	}

	bill, err := Normalize(raw, testNow)
	require.NoError(t, err)

	assert.Equal(t, "B-1004", bill.ID)
	assert.Equal(t, "C-88", bill.ConnectionID)
	assert.Equal(t, int64(32000), bill.TotalAmount)
	assert.Equal(t, int64(0), bill.Balance)
	assert.Equal(t, PaymentStatusPaid, bill.PaymentStatus)
	assert.Equal(t, int64(8), bill.Consumption)
}

func TestNormalize_MalformedRecords(t *testing.T) {
	tests := []struct {
		name  string
		raw   RawBill
		field string
	}{
		{
			name:  "missing total",
			raw:   RawBill{ID: "B-1", ConnectionID: "C-1", DueDate: "2025-06-15"},
			field: "total_amount",
		},
		{
			name:  "negative total",
			raw:   RawBill{ID: "B-2", ConnectionID: "C-1", DueDate: "2025-06-15", TotalAmount: i64(-5)},
			field: "total_amount",
		},
		{
			name: "readings regressed",
			raw: RawBill{
				ID: "B-3", ConnectionID: "C-1", DueDate: "2025-06-15",
				TotalAmount: i64(100), PreviousReading: i64(50), PresentReading: i64(40),
			},
			field: "present_reading",
		},
		{
			name: "balance above total",
			raw: RawBill{
				ID: "B-4", ConnectionID: "C-1", DueDate: "2025-06-15",
				TotalAmount: i64(100), Balance: i64(150),
			},
			field: "balance",
		},
		{
			name: "paid above total",
			raw: RawBill{
				ID: "B-5", ConnectionID: "C-1", DueDate: "2025-06-15",
				TotalAmount: i64(100), AmountPaid: i64(150),
			},
			field: "amount_paid",
		},
		{
			name:  "missing due date",
			raw:   RawBill{ID: "B-6", ConnectionID: "C-1", TotalAmount: i64(100)},
			field: "due_date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, testNow)
			require.Error(t, err)
			malformed, ok := AsMalformed(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, malformed.Field)
		})
	}
}

func TestNormalize_StatusCoupling(t *testing.T) {
	// An upstream status may never contradict the amount coupling.
	raw := RawBill{
		ID: "B-7", ConnectionID: "C-1", DueDate: "2025-06-15",
		TotalAmount: i64(400), AmountPaid: i64(150), Status: "unpaid",
	}
	bill, err := Normalize(raw, testNow)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPartial, bill.PaymentStatus)

	// Overdue and consolidated survive while nothing is paid.
	raw = RawBill{
		ID: "B-8", ConnectionID: "C-1", DueDate: "2025-06-15",
		TotalAmount: i64(400), Status: "consolidated",
	}
	bill, err = Normalize(raw, testNow)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusConsolidated, bill.PaymentStatus)
}

func TestApplyPayment_InvariantRoundTrip(t *testing.T) {
	bill := Bill{ID: "B-9", TotalAmount: 45000, AmountPaid: 0, Balance: 45000, PaymentStatus: PaymentStatusUnpaid}

	require.NoError(t, bill.ApplyPayment(15000, testNow))
	assert.Equal(t, bill.TotalAmount-bill.AmountPaid, bill.Balance)
	assert.Equal(t, PaymentStatusPartial, bill.PaymentStatus)

	require.NoError(t, bill.ApplyPayment(30000, testNow))
	assert.Equal(t, int64(0), bill.Balance)
	assert.Equal(t, PaymentStatusPaid, bill.PaymentStatus)
	require.NotNil(t, bill.SettledAt)
}

func TestApplyPayment_RejectsOverpayment(t *testing.T) {
	bill := Bill{ID: "B-10", TotalAmount: 100, AmountPaid: 0, Balance: 100, PaymentStatus: PaymentStatusUnpaid}

	err := bill.ApplyPayment(101, testNow)
	require.Error(t, err)
	validation, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "amount_exceeds_balance", validation.Code)

	err = bill.ApplyPayment(0, testNow)
	require.Error(t, err)
}
