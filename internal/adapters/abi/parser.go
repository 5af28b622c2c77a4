package abi

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// Encoder packs method calls from command-line style string arguments
type Encoder struct{}

// NewEncoder creates a new calldata encoder
func NewEncoder() *Encoder {
	return &Encoder{}
}

var _ usecase.CalldataEncoder = (*Encoder)(nil)

// EncodeCall returns the selector and packed arguments of method
func (e *Encoder) EncodeCall(artifact *models.Artifact, method string, args []string) ([]byte, error) {
	parsed, err := Parse(artifact)
	if err != nil {
		return nil, err
	}
	m, err := FindMethod(parsed, method, len(args))
	if err != nil {
		return nil, err
	}

	values, err := ParseArgs(m.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Sig, err)
	}
	data, err := parsed.Pack(m.Name, values...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", m.Sig, err)
	}
	return data, nil
}

// ParseArgs converts string arguments to the Go values abi.Pack expects
func ParseArgs(inputs abi.Arguments, args []string) ([]interface{}, error) {
	if len(inputs) != len(args) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(inputs), len(args))
	}
	values := make([]interface{}, len(args))
	for i, input := range inputs {
		v, err := ParseArg(input.Type, args[i])
		if err != nil {
			name := input.Name
			if name == "" {
				name = fmt.Sprintf("arg%d", i)
			}
			return nil, fmt.Errorf("argument %s (%s): %w", name, input.Type.String(), err)
		}
		values[i] = v
	}
	return values, nil
}

// ParseArg converts a single string to a value of typ. Arrays are written as
// JSON lists or comma separated values in brackets: [1,2,3].
func ParseArg(typ abi.Type, s string) (interface{}, error) {
	s = strings.TrimSpace(s)

	switch typ.T {
	case abi.UintTy, abi.IntTy:
		n, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		if typ.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %q for unsigned type", s)
		}
		if typ.Size > 64 {
			return n, nil
		}
		v := reflect.New(typ.GetType()).Elem()
		if typ.T == abi.UintTy {
			if !n.IsUint64() || v.OverflowUint(n.Uint64()) {
				return nil, fmt.Errorf("%s overflows %s", s, typ.String())
			}
			v.SetUint(n.Uint64())
		} else {
			if !n.IsInt64() || v.OverflowInt(n.Int64()) {
				return nil, fmt.Errorf("%s overflows %s", s, typ.String())
			}
			v.SetInt(n.Int64())
		}
		return v.Interface(), nil

	case abi.BoolTy:
		return strconv.ParseBool(s)

	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, s)
		}
		return common.HexToAddress(s), nil

	case abi.StringTy:
		return s, nil

	case abi.BytesTy:
		return decodeHex(s)

	case abi.FixedBytesTy:
		b, err := decodeHex(s)
		if err != nil {
			return nil, err
		}
		if len(b) > typ.Size {
			return nil, fmt.Errorf("%d bytes do not fit %s", len(b), typ.String())
		}
		v := reflect.New(typ.GetType()).Elem()
		reflect.Copy(v, reflect.ValueOf(b))
		return v.Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		items, err := splitList(s)
		if err != nil {
			return nil, err
		}
		if typ.T == abi.ArrayTy && len(items) != typ.Size {
			return nil, fmt.Errorf("expected %d elements, got %d", typ.Size, len(items))
		}
		var v reflect.Value
		if typ.T == abi.SliceTy {
			v = reflect.MakeSlice(typ.GetType(), len(items), len(items))
		} else {
			v = reflect.New(typ.GetType()).Elem()
		}
		for i, item := range items {
			elem, err := ParseArg(*typ.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			v.Index(i).Set(reflect.ValueOf(elem))
		}
		return v.Interface(), nil
	}

	return nil, fmt.Errorf("unsupported argument type %s", typ.String())
}

func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("expected 0x-prefixed hex, got %q", s)
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd length hex %q", s)
	}
	return common.FromHex(s), nil
}

func splitList(s string) ([]string, error) {
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("expected a list in brackets, got %q", s)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err == nil {
		items := make([]string, len(raw))
		for i, r := range raw {
			var str string
			if json.Unmarshal(r, &str) == nil {
				items[i] = str
			} else {
				items[i] = string(r)
			}
		}
		return items, nil
	}

	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil, nil
	}
	items := strings.Split(inner, ",")
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return items, nil
}
