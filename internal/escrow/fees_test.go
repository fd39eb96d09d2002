package escrow

import (
	"math"
	"testing"
)

func TestNetAmount(t *testing.T) {
	tests := []struct {
		name    string
		gross   int64
		feeBps  int
		wantNet int64
		wantFee int64
	}{
		{"zero fee", 1000, 0, 1000, 0},
		{"max fee", 100, 1000, 90, 10},
		{"typical fee", 1000000, 250, 975000, 25000},
		{"fee rounds down", 999, 250, 975, 24},
		{"tiny amount rounds to zero fee", 39, 250, 39, 0},
		{"zero gross", 0, 500, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net, fee, err := NetAmount(tt.gross, tt.feeBps)
			if err != nil {
				t.Fatalf("NetAmount(%d, %d) returned error: %v", tt.gross, tt.feeBps, err)
			}
			if net != tt.wantNet || fee != tt.wantFee {
				t.Fatalf("NetAmount(%d, %d) = (%d, %d), want (%d, %d)",
					tt.gross, tt.feeBps, net, fee, tt.wantNet, tt.wantFee)
			}
			if net+fee != tt.gross {
				t.Fatalf("net %d + fee %d != gross %d", net, fee, tt.gross)
			}
		})
	}
}

func TestNetAmountConserves(t *testing.T) {
	for bps := 0; bps <= 1000; bps += 7 {
		for _, gross := range []int64{1, 99, 1000, 123456789, 1 << 40} {
			net, fee, err := NetAmount(gross, bps)
			if err != nil {
				t.Fatalf("NetAmount(%d, %d) returned error: %v", gross, bps, err)
			}
			if net+fee != gross {
				t.Fatalf("NetAmount(%d, %d): net %d + fee %d != gross", gross, bps, net, fee)
			}
			if fee < 0 || fee > gross {
				t.Fatalf("NetAmount(%d, %d): fee %d out of range", gross, bps, fee)
			}
		}
	}
}

func TestNetAmountLargeGross(t *testing.T) {
	tests := []struct {
		name    string
		gross   int64
		feeBps  int
		wantFee int64
	}{
		{"max int64 at max fee", math.MaxInt64, 1000, 922337203685477580},
		{"max int64 at typical fee", math.MaxInt64, 250, 230584300921369395},
		{"large round amount", 4_000_000_000_000_000_000, 250, 100_000_000_000_000_000},
		{"large amount with remainder", 4_000_000_000_000_009_999, 250, 100_000_000_000_000_249},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net, fee, err := NetAmount(tt.gross, tt.feeBps)
			if err != nil {
				t.Fatalf("NetAmount(%d, %d) returned error: %v", tt.gross, tt.feeBps, err)
			}
			if fee != tt.wantFee {
				t.Fatalf("NetAmount(%d, %d) fee = %d, want %d", tt.gross, tt.feeBps, fee, tt.wantFee)
			}
			if fee < 0 || net < 0 || net+fee != tt.gross {
				t.Fatalf("NetAmount(%d, %d) = (%d, %d), does not conserve gross", tt.gross, tt.feeBps, net, fee)
			}
		})
	}
}

func TestNetAmountRejectsBadInput(t *testing.T) {
	if _, _, err := NetAmount(-1, 250); !IsKind(err, KindInvalidArgument) {
		t.Fatalf("negative gross: got %v, want invalid_argument", err)
	}
	if _, _, err := NetAmount(100, -1); !IsKind(err, KindInvalidArgument) {
		t.Fatalf("negative fee: got %v, want invalid_argument", err)
	}
	if _, _, err := NetAmount(100, 1001); !IsKind(err, KindInvalidArgument) {
		t.Fatalf("fee above cap: got %v, want invalid_argument", err)
	}
}
