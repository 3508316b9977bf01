package chain

import (
	"math"
	"testing"

	"github.com/scrutinychain/sdk/pkg/errors"
)

func TestAddressAndHash_String(t *testing.T) {
	if got := Address("0x123").String(); got != "0x123" {
		t.Errorf("Address.String() = %v, want 0x123", got)
	}
	if got := Hash("0xabc").String(); got != "0xabc" {
		t.Errorf("Hash.String() = %v, want 0xabc", got)
	}

	// Identifiers are comparable and usable as map keys.
	seen := map[Address]int{"0xabc": 1}
	if seen[Address("0xabc")] != 1 {
		t.Error("Address should be usable as a map key")
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid checksum", "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", false},
		{"valid lowercase", "0x742d35cc6634c0532925a3b844bc454e4438f44e", false},
		{"surrounding space", "  0x742d35cc6634c0532925a3b844bc454e4438f44e ", false},
		{"missing prefix", "742d35cc6634c0532925a3b844bc454e4438f44e", true},
		{"too short", "0x123", true},
		{"not hex", "0xzz2d35cc6634c0532925a3b844bc454e4438f44e", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAddress(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && errors.GetKind(err) != errors.KindValidation {
				t.Errorf("GetKind() = %v, want %v", errors.GetKind(err), errors.KindValidation)
			}
		})
	}
}

func TestParseHash(t *testing.T) {
	valid := "0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925"
	if _, err := ParseHash(valid); err != nil {
		t.Errorf("ParseHash(valid) error = %v", err)
	}
	if _, err := ParseHash("0x1234"); err == nil {
		t.Error("ParseHash should reject short hashes")
	}
	if _, err := ParseHash("nothex"); err == nil {
		t.Error("ParseHash should reject non-hex input")
	}
}

func TestTimeRange_Contains(t *testing.T) {
	r := NewTimeRange(100, 200)

	tests := []struct {
		ts   uint64
		want bool
	}{
		{99, false},
		{100, true},
		{150, true},
		{200, true},
		{201, false},
	}

	for _, tt := range tests {
		if got := r.Contains(tt.ts); got != tt.want {
			t.Errorf("Contains(%d) = %v, want %v", tt.ts, got, tt.want)
		}
	}
}

func TestTransaction(t *testing.T) {
	to := Address("0xdef")
	tx := NewTransaction("0x123", "0xabc", &to, 1000, 50, 21000, 5, []byte{1, 2, 3})

	if tx.Timestamp == 0 {
		t.Error("NewTransaction should stamp the current time")
	}
	if got := tx.TotalCost(); got != 1000+50*21000 {
		t.Errorf("TotalCost() = %d, want %d", got, 1000+50*21000)
	}
	if tx.IsContractCreation() {
		t.Error("transaction with a recipient is not a contract creation")
	}

	deploy := NewTransaction("0x456", "0xabc", nil, 0, 1, 1, 0, []byte{0x60, 0x80})
	if !deploy.IsContractCreation() {
		t.Error("transaction without recipient but with data is a contract creation")
	}

	empty := NewTransaction("0x789", "0xabc", nil, 0, 1, 1, 0, nil)
	if empty.IsContractCreation() {
		t.Error("transaction without data is not a contract creation")
	}

	future := &Transaction{Timestamp: CurrentTimestamp() + 3600}
	if future.AgeInSeconds() != 0 {
		t.Error("AgeInSeconds should saturate at zero")
	}
}

func TestTransaction_TotalCostSaturates(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		want uint64
	}{
		{"no overflow", Transaction{Value: 1, GasPrice: 2, GasLimit: 3}, 7},
		{"max value alone", Transaction{Value: math.MaxUint64}, math.MaxUint64},
		{"value plus gas overflows", Transaction{Value: math.MaxUint64, GasPrice: 2, GasLimit: 1}, math.MaxUint64},
		{"gas product overflows", Transaction{GasPrice: math.MaxUint64, GasLimit: 2}, math.MaxUint64},
		{"exactly max", Transaction{Value: math.MaxUint64 - 6, GasPrice: 2, GasLimit: 3}, math.MaxUint64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tx.TotalCost(); got != tt.want {
				t.Errorf("TotalCost() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSmartContract(t *testing.T) {
	c := NewSmartContract("0x789", []byte{0, 1, 2}, "0xabc", "0x123")
	c.Storage["owner"] = []byte{0xaa}

	if c.BytecodeSize() != 3 {
		t.Errorf("BytecodeSize() = %d, want 3", c.BytecodeSize())
	}
	if !c.HasStorage("owner") {
		t.Error("HasStorage(owner) = false, want true")
	}
	if c.HasStorage("missing") {
		t.Error("HasStorage(missing) = true, want false")
	}
}

func TestHexConversion(t *testing.T) {
	b, err := HexToBytes("0x1234AB")
	if err != nil {
		t.Fatalf("HexToBytes error = %v", err)
	}
	if got := BytesToHex(b); got != "0x1234ab" {
		t.Errorf("round trip = %v, want 0x1234ab", got)
	}

	b, err = HexToBytes("beef")
	if err != nil || len(b) != 2 {
		t.Errorf("HexToBytes without prefix = %v, %v", b, err)
	}

	if _, err := HexToBytes("0x123"); err == nil {
		t.Error("HexToBytes should reject odd-length input")
	}
}
