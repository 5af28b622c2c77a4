package abi

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

const saleABI = `[
	{"type":"function","name":"initialize","inputs":[{"name":"rate","type":"uint256"},{"name":"wallet","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"setTiers","inputs":[{"name":"tiers","type":"uint8[]"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"setRoot","inputs":[{"name":"root","type":"bytes32"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"pause","inputs":[],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"pause","inputs":[{"name":"until","type":"uint64"}],"outputs":[],"stateMutability":"nonpayable"}
]`

func mustType(t *testing.T, s string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(s, "", nil)
	require.NoError(t, err)
	return typ
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		input   string
		want    interface{}
		wantErr bool
	}{
		{name: "uint256 decimal", typ: "uint256", input: "1000", want: big.NewInt(1000)},
		{name: "uint256 hex", typ: "uint256", input: "0xff", want: big.NewInt(255)},
		{name: "uint8", typ: "uint8", input: "7", want: uint8(7)},
		{name: "uint8 overflow", typ: "uint8", input: "256", wantErr: true},
		{name: "negative uint", typ: "uint256", input: "-1", wantErr: true},
		{name: "int64", typ: "int64", input: "-5", want: int64(-5)},
		{name: "bool", typ: "bool", input: "true", want: true},
		{name: "bad bool", typ: "bool", input: "yes", wantErr: true},
		{
			name:  "address",
			typ:   "address",
			input: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
			want:  common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		},
		{name: "bad address", typ: "address", input: "0x123", wantErr: true},
		{name: "string", typ: "string", input: "Sale", want: "Sale"},
		{name: "bytes", typ: "bytes", input: "0xdeadbeef", want: []byte{0xde, 0xad, 0xbe, 0xef}},
		{name: "bytes without prefix", typ: "bytes", input: "deadbeef", wantErr: true},
		{name: "bytes4", typ: "bytes4", input: "0x01020304", want: [4]byte{1, 2, 3, 4}},
		{name: "bytes4 too long", typ: "bytes4", input: "0x0102030405", wantErr: true},
		{name: "uint8 list", typ: "uint8[]", input: "[1, 2, 3]", want: []uint8{1, 2, 3}},
		{name: "fixed array", typ: "uint8[2]", input: "[1,2]", want: [2]uint8{1, 2}},
		{name: "fixed array wrong size", typ: "uint8[2]", input: "[1]", wantErr: true},
		{
			name:  "address list",
			typ:   "address[]",
			input: `["0x5FbDB2315678afecb367f032d93F642f64180aa3"]`,
			want:  []common.Address{common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")},
		},
		{name: "not a list", typ: "uint8[]", input: "1,2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArg(mustType(t, tt.typ), tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeCall(t *testing.T) {
	artifact := &models.Artifact{ABI: []byte(saleABI)}
	enc := NewEncoder()

	data, err := enc.EncodeCall(artifact, "initialize", []string{"5", "0x5FbDB2315678afecb367f032d93F642f64180aa3"})
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256([]byte("initialize(uint256,address)"))[:4], data[:4])
	assert.Len(t, data, 4+64)
	assert.Equal(t, common.LeftPadBytes([]byte{5}, 32), data[4:36])

	t.Run("overload by arity", func(t *testing.T) {
		data, err := enc.EncodeCall(artifact, "pause", []string{"10"})
		require.NoError(t, err)
		assert.Equal(t, crypto.Keccak256([]byte("pause(uint64)"))[:4], data[:4])

		data, err = enc.EncodeCall(artifact, "pause", nil)
		require.NoError(t, err)
		assert.Equal(t, crypto.Keccak256([]byte("pause()"))[:4], data)
	})

	t.Run("missing method", func(t *testing.T) {
		_, err := enc.EncodeCall(artifact, "initializeV2", nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("wrong arity", func(t *testing.T) {
		_, err := enc.EncodeCall(artifact, "initialize", []string{"5"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("bad argument", func(t *testing.T) {
		_, err := enc.EncodeCall(artifact, "initialize", []string{"five", "0x5FbDB2315678afecb367f032d93F642f64180aa3"})
		assert.ErrorContains(t, err, "rate")
	})

	t.Run("no abi", func(t *testing.T) {
		_, err := enc.EncodeCall(&models.Artifact{}, "initialize", nil)
		assert.ErrorIs(t, err, domain.ErrMetadataUnavailable)
	})
}

func TestUpgradedIn(t *testing.T) {
	proxy := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	v2 := common.HexToAddress("0x2222")
	v3 := common.HexToAddress("0x3333")

	logs := []*types.Log{
		{Address: common.HexToAddress("0x9999"), Topics: []common.Hash{UpgradedTopic, common.BytesToHash(v3.Bytes())}},
		{Address: proxy, Topics: []common.Hash{OwnershipTransferredTopic, {}, {}}},
		{Address: proxy, Topics: []common.Hash{UpgradedTopic, common.BytesToHash(v2.Bytes())}},
	}

	impl, ok := UpgradedIn(logs, proxy)
	require.True(t, ok)
	assert.Equal(t, v2, impl)

	_, ok = UpgradedIn(logs[:2], proxy)
	assert.False(t, ok)
}

func TestProxyAdminABI(t *testing.T) {
	parsed := ParsedProxyAdmin()
	for _, name := range []string{"UPGRADE_INTERFACE_VERSION", "owner", "transferOwnership", "upgrade", "upgradeAndCall"} {
		_, ok := parsed.Methods[name]
		assert.True(t, ok, name)
	}
	assert.Equal(t, OwnershipTransferredTopic, parsed.Events["OwnershipTransferred"].ID)
}
