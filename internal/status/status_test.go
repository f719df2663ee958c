package status

import (
	"testing"

	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	connectiondomain "github.com/hydranet/aquabill/internal/connection/domain"
	"github.com/stretchr/testify/require"
)

func TestClassifyPriority(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want RenderedStatus
	}{
		{
			name: "disconnected trumps everything",
			in: Input{
				PaymentStatus:       billdomain.PaymentStatusPaid,
				ConnectionState:     connectiondomain.StateDisconnected,
				EarliestOverdueDays: 40,
			},
			want: Disconnected,
		},
		{
			name: "for reconnection trumps paid",
			in: Input{
				PaymentStatus:   billdomain.PaymentStatusPaid,
				ConnectionState: connectiondomain.StateForReconnection,
			},
			want: ForReconnection,
		},
		{
			name: "scheduled reconnection trumps overdue",
			in: Input{
				PaymentStatus:       billdomain.PaymentStatusOverdue,
				ConnectionState:     connectiondomain.StateScheduledForReconnection,
				EarliestOverdueDays: 10,
			},
			want: ScheduledForReconnection,
		},
		{
			name: "scheduled disconnection trumps partial",
			in: Input{
				PaymentStatus:   billdomain.PaymentStatusPartial,
				ConnectionState: connectiondomain.StateScheduledForDisconnection,
			},
			want: ScheduledForDisconnection,
		},
		{
			name: "paid on active connection",
			in: Input{
				PaymentStatus:   billdomain.PaymentStatusPaid,
				ConnectionState: connectiondomain.StateActive,
			},
			want: Paid,
		},
		{
			name: "overdue when earliest bill past due",
			in: Input{
				PaymentStatus:       billdomain.PaymentStatusUnpaid,
				ConnectionState:     connectiondomain.StateActive,
				EarliestOverdueDays: 5,
				DaysUntilDue:        -5,
			},
			want: Overdue,
		},
		{
			name: "for disconnection on unpaid bill",
			in: Input{
				PaymentStatus:       billdomain.PaymentStatusOverdue,
				ConnectionState:     connectiondomain.StateForDisconnection,
				EarliestOverdueDays: 70,
			},
			want: ForDisconnection,
		},
		{
			name: "due soon inside window",
			in: Input{
				PaymentStatus:       billdomain.PaymentStatusUnpaid,
				ConnectionState:     connectiondomain.StateActive,
				EarliestOverdueDays: -2,
				DaysUntilDue:        2,
				DueSoonDays:         3,
			},
			want: DueSoon,
		},
		{
			name: "due today counts as due soon",
			in: Input{
				PaymentStatus:   billdomain.PaymentStatusUnpaid,
				ConnectionState: connectiondomain.StateActive,
				DaysUntilDue:    0,
			},
			want: DueSoon,
		},
		{
			name: "pending outside due soon window",
			in: Input{
				PaymentStatus:       billdomain.PaymentStatusUnpaid,
				ConnectionState:     connectiondomain.StateActive,
				EarliestOverdueDays: -20,
				DaysUntilDue:        20,
			},
			want: Pending,
		},
		{
			name: "consolidated past due renders overdue",
			in: Input{
				PaymentStatus:       billdomain.PaymentStatusConsolidated,
				ConnectionState:     connectiondomain.StateActive,
				EarliestOverdueDays: 12,
			},
			want: Overdue,
		},
		{
			name: "unrecognized payment status falls back to unknown",
			in: Input{
				PaymentStatus:   billdomain.PaymentStatus("garbage"),
				ConnectionState: connectiondomain.StateActive,
			},
			want: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.in))
		})
	}
}

// A partially paid bill keeps its partial badge even while the connection is
// flagged for disconnection, regardless of which condition is checked first.
func TestClassifyPartialBeatsForDisconnection(t *testing.T) {
	partialThenFlag := Input{
		PaymentStatus:       billdomain.PaymentStatusPartial,
		ConnectionState:     connectiondomain.StateForDisconnection,
		EarliestOverdueDays: 45,
	}
	require.Equal(t, Partial, Classify(partialThenFlag))

	flagThenPartial := Input{
		ConnectionState:     connectiondomain.StateForDisconnection,
		PaymentStatus:       billdomain.PaymentStatusPartial,
		EarliestOverdueDays: 45,
	}
	require.Equal(t, Partial, Classify(flagThenPartial))
}

func TestClassifyDefaultDueSoonWindow(t *testing.T) {
	in := Input{
		PaymentStatus:   billdomain.PaymentStatusUnpaid,
		ConnectionState: connectiondomain.StateActive,
		DaysUntilDue:    3,
	}
	require.Equal(t, DueSoon, Classify(in))

	in.DaysUntilDue = 4
	require.Equal(t, Pending, Classify(in))
}
