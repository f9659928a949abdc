package entity

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestRawBlock_Empty(t *testing.T) {
	var nilBlock *RawBlock
	cases := []struct {
		name string
		raw  *RawBlock
		want bool
	}{
		{name: "nil_envelope", raw: nilBlock, want: true},
		{name: "no_result", raw: &RawBlock{Number: 1}, want: true},
		{name: "null_result", raw: &RawBlock{Number: 1, Result: json.RawMessage("null")}, want: true},
		{name: "padded_null", raw: &RawBlock{Number: 1, Result: json.RawMessage("  null\n")}, want: true},
		{name: "payload", raw: &RawBlock{Number: 1, Result: json.RawMessage(`{"number":"0x1"}`)}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.raw.Empty())
		})
	}
}

func TestBlock_Accessors(t *testing.T) {
	parent := common.HexToHash("0xaa")
	b := &Block{NodeName: "mainnet", Hash: common.HexToHash("0xbb"), Header: Header{Number: 42, ParentHash: parent, Time: 1700000000}}
	require.Equal(t, uint64(42), b.Number())
	require.Equal(t, parent, b.ParentHash())
	require.Equal(t, uint64(1700000000), b.Timestamp())
}
