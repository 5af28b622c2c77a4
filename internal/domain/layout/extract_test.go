package layout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

const saleLayout = `{
  "storage": [
    {"astId": 18, "contract": "src/Sale.sol:Sale", "label": "__gap", "offset": 0, "slot": "4", "type": "t_array(t_uint256)48_storage"},
    {"astId": 3, "contract": "src/Sale.sol:Sale", "label": "owner", "offset": 0, "slot": "0", "type": "t_address"},
    {"astId": 5, "contract": "src/Sale.sol:Sale", "label": "paused", "offset": 20, "slot": "0", "type": "t_bool"},
    {"astId": 9, "contract": "src/Sale.sol:Sale", "label": "balances", "offset": 0, "slot": "1", "type": "t_mapping(t_address,t_uint256)"},
    {"astId": 14, "contract": "src/Sale.sol:Sale", "label": "config", "offset": 0, "slot": "2", "type": "t_struct(Config)12_storage"}
  ],
  "types": {
    "t_address": {"encoding": "inplace", "label": "address", "numberOfBytes": "20"},
    "t_bool": {"encoding": "inplace", "label": "bool", "numberOfBytes": "1"},
    "t_uint256": {"encoding": "inplace", "label": "uint256", "numberOfBytes": "32"},
    "t_mapping(t_address,t_uint256)": {"encoding": "mapping", "key": "t_address", "label": "mapping(address => uint256)", "numberOfBytes": "32", "value": "t_uint256"},
    "t_struct(Config)12_storage": {
      "encoding": "inplace",
      "label": "struct Sale.Config",
      "numberOfBytes": "64",
      "members": [
        {"astId": 10, "contract": "src/Sale.sol:Sale", "label": "price", "offset": 0, "slot": "0", "type": "t_uint256"},
        {"astId": 11, "contract": "src/Sale.sol:Sale", "label": "cap", "offset": 0, "slot": "1", "type": "t_uint256"}
      ]
    },
    "t_array(t_uint256)48_storage": {"base": "t_uint256", "encoding": "inplace", "label": "uint256[48]", "numberOfBytes": "1536"}
  }
}`

func TestExtract(t *testing.T) {
	got, err := Extract(json.RawMessage(saleLayout))
	require.NoError(t, err)

	want := []models.Slot{
		{Slot: 0, Offset: 0, Bytes: 20, Type: "t_address", Label: "owner"},
		{Slot: 0, Offset: 20, Bytes: 1, Type: "t_bool", Label: "paused"},
		{Slot: 1, Offset: 0, Bytes: 32, Type: "t_mapping(t_address,t_uint256)", Label: "balances"},
		{Slot: 2, Offset: 0, Bytes: 64, Type: "t_struct(Config)12_storage", Label: "config"},
		{Slot: 2, Offset: 0, Bytes: 32, Type: "t_uint256", Label: "config.price"},
		{Slot: 3, Offset: 0, Bytes: 32, Type: "t_uint256", Label: "config.cap"},
		{Slot: 4, Offset: 0, Bytes: 1536, Type: "t_array(t_uint256)48_storage", Label: "__gap", Reserved: true},
	}
	assert.Equal(t, want, got.Entries)

	last, ok := got.MaxSlot()
	require.True(t, ok)
	assert.Equal(t, uint64(51), last)
}

func TestExtractIsDeterministic(t *testing.T) {
	first, err := Extract(json.RawMessage(saleLayout))
	require.NoError(t, err)
	second, err := Extract(json.RawMessage(saleLayout))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, Hash(first), Hash(second))

	changed := first
	changed.Entries = append([]models.Slot(nil), first.Entries...)
	changed.Entries[0].Bytes = 32
	assert.NotEqual(t, Hash(first), Hash(changed))
}

func TestExtractEmptyStorage(t *testing.T) {
	got, err := Extract(json.RawMessage(`{"storage": [], "types": null}`))
	require.NoError(t, err)
	assert.Empty(t, got.Entries)

	_, ok := got.MaxSlot()
	assert.False(t, ok)
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{
			name:    "missing",
			raw:     "",
			wantErr: domain.ErrMetadataUnavailable,
		},
		{
			name:    "null",
			raw:     "null",
			wantErr: domain.ErrMetadataUnavailable,
		},
		{
			name:    "no storage section",
			raw:     `{"types": {}}`,
			wantErr: domain.ErrMetadataUnavailable,
		},
		{
			name:    "malformed json",
			raw:     `{"storage": [`,
			wantErr: domain.ErrMetadataUnavailable,
		},
		{
			name:    "undescribed type",
			raw:     `{"storage": [{"label": "x", "offset": 0, "slot": "0", "type": "t_uint256"}], "types": {}}`,
			wantErr: domain.ErrUnsupportedTypeEncoding,
		},
		{
			name:    "unknown encoding",
			raw:     `{"storage": [{"label": "x", "offset": 0, "slot": "0", "type": "t_x"}], "types": {"t_x": {"encoding": "transient", "numberOfBytes": "32"}}}`,
			wantErr: domain.ErrUnsupportedTypeEncoding,
		},
		{
			name:    "unparseable slot",
			raw:     `{"storage": [{"label": "x", "offset": 0, "slot": "zero", "type": "t_uint256"}], "types": {"t_uint256": {"encoding": "inplace", "numberOfBytes": "32"}}}`,
			wantErr: domain.ErrUnsupportedTypeEncoding,
		},
		{
			name:    "hashed slot",
			raw:     `{"storage": [{"label": "x", "offset": 0, "slot": "115792089237316195423570985008687907853269984665640564039457584007913129639935", "type": "t_uint256"}], "types": {"t_uint256": {"encoding": "inplace", "numberOfBytes": "32"}}}`,
			wantErr: domain.ErrUnsupportedTypeEncoding,
		},
		{
			name:    "struct member slot wraps around",
			raw:     `{"storage": [{"label": "s", "offset": 0, "slot": "1", "type": "t_struct(S)"}], "types": {"t_struct(S)": {"encoding": "inplace", "numberOfBytes": "32", "members": [{"label": "a", "offset": 0, "slot": "18446744073709551615", "type": "t_uint256"}]}, "t_uint256": {"encoding": "inplace", "numberOfBytes": "32"}}}`,
			wantErr: domain.ErrUnsupportedTypeEncoding,
		},
		{
			name:    "width past sequential storage",
			raw:     `{"storage": [{"label": "x", "offset": 0, "slot": "0", "type": "t_x"}], "types": {"t_x": {"encoding": "inplace", "numberOfBytes": "18446744073709551615"}}}`,
			wantErr: domain.ErrUnsupportedTypeEncoding,
		},
		{
			name:    "offset outside the slot",
			raw:     `{"storage": [{"label": "x", "offset": 18446744073709551615, "slot": "0", "type": "t_bool"}], "types": {"t_bool": {"encoding": "inplace", "numberOfBytes": "1"}}}`,
			wantErr: domain.ErrUnsupportedTypeEncoding,
		},
		{
			name:    "zero width",
			raw:     `{"storage": [{"label": "x", "offset": 0, "slot": "0", "type": "t_x"}], "types": {"t_x": {"encoding": "inplace", "numberOfBytes": "0"}}}`,
			wantErr: domain.ErrUnsupportedTypeEncoding,
		},
		{
			name:    "crosses slot boundary",
			raw:     `{"storage": [{"label": "x", "offset": 16, "slot": "0", "type": "t_address"}], "types": {"t_address": {"encoding": "inplace", "numberOfBytes": "20"}}}`,
			wantErr: domain.ErrUnsupportedTypeEncoding,
		},
		{
			name:    "packed mapping",
			raw:     `{"storage": [{"label": "m", "offset": 4, "slot": "0", "type": "t_m"}], "types": {"t_m": {"encoding": "mapping", "numberOfBytes": "32"}}}`,
			wantErr: domain.ErrUnsupportedTypeEncoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(json.RawMessage(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFamily(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"t_uint256", "uint256"},
		{"t_address_payable", "address"},
		{"t_contract(IERC20)1234", "address"},
		{"t_struct(Config)12_storage", "struct"},
		{"t_enum(Status)7", "enum"},
		{"t_string_storage", "string"},
		{"t_bytes_storage", "bytes"},
		{"t_array(t_uint256)48_storage", "array(uint256)48"},
		{"t_array(t_address)dyn_storage", "array(address)dyn"},
		{"t_mapping(t_address,t_struct(Position)45_storage)", "mapping(address,struct)"},
		{"t_mapping(t_address,t_contract(Token)9)", "mapping(address,address)"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, Family(tt.tag))
		})
	}

	assert.True(t, SameFamily("t_contract(IERC20)1", "t_address"))
	assert.True(t, SameFamily("t_struct(A)1_storage", "t_struct(B)2_storage"))
	assert.False(t, SameFamily("t_address", "t_bytes20"))
	assert.False(t, SameFamily("t_array(t_uint256)2_storage", "t_array(t_uint256)3_storage"))
}
