package domain

import (
	"testing"
	"time"

	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSummarizeSingleUnpaidBill(t *testing.T) {
	today := day(2026, time.March, 10)
	bills := []billdomain.Bill{
		{
			ID:            "B-1",
			ConnectionID:  "C-1",
			DueDate:       day(2026, time.March, 20),
			TotalAmount:   50000,
			Balance:       50000,
			PaymentStatus: billdomain.PaymentStatusUnpaid,
		},
	}

	sum := Summarize(bills, today)

	require.Equal(t, int64(50000), sum.TotalDue)
	require.Equal(t, 1, sum.UnpaidCount)
	require.Equal(t, 0, sum.PastDueCount)
	require.Equal(t, "B-1", sum.EarliestDueBillID)
	require.Equal(t, -10, sum.EarliestOverdueDays)
	require.Equal(t, int64(50000), sum.PerBillBalance["B-1"])
}

func TestSummarizeMultipleBillsSumsBalancesOnce(t *testing.T) {
	today := day(2026, time.March, 10)
	bills := []billdomain.Bill{
		{ID: "B-1", DueDate: day(2026, time.February, 15), TotalAmount: 30000, Balance: 30000, PaymentStatus: billdomain.PaymentStatusOverdue},
		{ID: "B-2", DueDate: day(2026, time.March, 15), TotalAmount: 45000, AmountPaid: 20000, Balance: 25000, PaymentStatus: billdomain.PaymentStatusPartial},
		{ID: "B-3", DueDate: day(2026, time.January, 15), TotalAmount: 10000, AmountPaid: 10000, Balance: 0, PaymentStatus: billdomain.PaymentStatusPaid},
	}

	sum := Summarize(bills, today)

	require.Equal(t, int64(55000), sum.TotalDue)
	require.Equal(t, 2, sum.UnpaidCount)
	require.Equal(t, 1, sum.PastDueCount)
	require.Equal(t, "B-1", sum.EarliestDueBillID)
	require.Equal(t, 23, sum.EarliestOverdueDays)
	require.Equal(t, int64(0), sum.PerBillBalance["B-3"])
}

func TestSummarizeTieBreakPrefersLargerBalance(t *testing.T) {
	today := day(2026, time.March, 10)
	due := day(2026, time.February, 28)
	bills := []billdomain.Bill{
		{ID: "B-small", DueDate: due, TotalAmount: 10000, Balance: 10000, PaymentStatus: billdomain.PaymentStatusOverdue},
		{ID: "B-large", DueDate: due, TotalAmount: 30000, Balance: 30000, PaymentStatus: billdomain.PaymentStatusOverdue},
	}

	sum := Summarize(bills, today)
	require.Equal(t, "B-large", sum.EarliestDueBillID)

	// Input order must not change the winner.
	sum = Summarize([]billdomain.Bill{bills[1], bills[0]}, today)
	require.Equal(t, "B-large", sum.EarliestDueBillID)
}

func TestSummarizeConsolidatedCountsAsUnpaid(t *testing.T) {
	today := day(2026, time.March, 10)
	bills := []billdomain.Bill{
		{ID: "B-1", DueDate: day(2026, time.February, 1), TotalAmount: 80000, Balance: 80000, PaymentStatus: billdomain.PaymentStatusConsolidated},
	}

	sum := Summarize(bills, today)
	require.Equal(t, int64(80000), sum.TotalDue)
	require.Equal(t, 1, sum.UnpaidCount)
	require.Equal(t, 1, sum.PastDueCount)
}

func TestSummarizeAllPaid(t *testing.T) {
	today := day(2026, time.March, 10)
	bills := []billdomain.Bill{
		{ID: "B-1", DueDate: day(2026, time.February, 1), TotalAmount: 20000, AmountPaid: 20000, Balance: 0, PaymentStatus: billdomain.PaymentStatusPaid},
		{ID: "B-2", DueDate: day(2026, time.March, 1), TotalAmount: 20000, AmountPaid: 20000, Balance: 0, PaymentStatus: billdomain.PaymentStatusPaid},
	}

	sum := Summarize(bills, today)
	require.Equal(t, int64(0), sum.TotalDue)
	require.Equal(t, 0, sum.UnpaidCount)
	require.Empty(t, sum.EarliestDueBillID)
	require.Equal(t, 0, sum.EarliestOverdueDays)
}

func TestDaysBetweenIgnoresTimeOfDay(t *testing.T) {
	today := time.Date(2026, time.March, 10, 23, 59, 0, 0, time.UTC)
	due := time.Date(2026, time.March, 10, 0, 1, 0, 0, time.UTC)
	require.Equal(t, 0, DaysBetween(today, due))

	due = time.Date(2026, time.March, 9, 23, 59, 0, 0, time.UTC)
	require.Equal(t, 1, DaysBetween(today, due))
}
