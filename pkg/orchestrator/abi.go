package orchestrator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
)

// argSeparator delimits positional arguments in constructor and method args.
const argSeparator = ":"

func parseABI(definition string) (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		return abi.ABI{}, apperrors.BadRequestError(fmt.Errorf("failed to parse abi: %w", err), "invalid abi")
	}
	return parsed, nil
}

func lookupMethod(parsed abi.ABI, name string) (abi.Method, error) {
	method, ok := parsed.Methods[name]
	if !ok {
		return abi.Method{}, apperrors.BadRequestError(fmt.Errorf("method %q not found in abi", name), fmt.Sprintf("unknown method %q", name))
	}
	return method, nil
}

// splitArgs splits a colon-delimited argument string. A blank string is no
// arguments.
func splitArgs(args string) []string {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	return strings.Split(args, argSeparator)
}

// convertArgs turns raw positional arguments into values abi.Pack accepts.
// The count must equal the number of inputs.
func convertArgs(inputs abi.Arguments, raw string) ([]any, error) {
	parts := splitArgs(raw)
	if len(parts) != len(inputs) {
		return nil, apperrors.BadRequestError(
			fmt.Errorf("%w: got %d, want %d", ErrArgumentArityMismatch, len(parts), len(inputs)),
			fmt.Sprintf("expected %d arguments, got %d", len(inputs), len(parts)))
	}

	values := make([]any, len(inputs))
	for i, in := range inputs {
		v, err := convertArg(in.Type, parts[i])
		if err != nil {
			return nil, apperrors.BadRequestError(
				fmt.Errorf("argument %d (%s %s): %w", i, in.Type, in.Name, err),
				fmt.Sprintf("invalid argument %d: %v", i, err))
		}
		values[i] = v
	}
	return values, nil
}

// convertArg converts a colon-split string, or an element decoded from a
// JSON array, to the Go type go-ethereum expects for t.
func convertArg(t abi.Type, raw any) (any, error) {
	switch t.T {
	case abi.SliceTy, abi.ArrayTy:
		return convertList(t, raw)
	case abi.TupleTy, abi.FunctionTy, abi.FixedPointTy:
		return nil, fmt.Errorf("unsupported argument type %s", t)
	}

	s, err := scalarString(raw)
	if err != nil {
		return nil, err
	}

	switch t.T {
	case abi.StringTy:
		return s, nil
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s), nil
	case abi.BoolTy:
		return strconv.ParseBool(s)
	case abi.IntTy, abi.UintTy:
		return convertInteger(t, s)
	case abi.BytesTy:
		return hexutil.Decode(s)
	case abi.FixedBytesTy, abi.HashTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		arr := reflect.New(t.GetType()).Elem()
		if len(b) > arr.Len() {
			return nil, fmt.Errorf("%d bytes do not fit %s", len(b), t)
		}
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported argument type %s", t)
	}
}

// convertList parses array inputs from JSON, e.g. a bytes32[] proof.
func convertList(t abi.Type, raw any) (any, error) {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case string:
		dec := json.NewDecoder(strings.NewReader(v))
		dec.UseNumber()
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("expected JSON array for %s: %w", t, err)
		}
	default:
		return nil, fmt.Errorf("expected JSON array for %s", t)
	}

	var out reflect.Value
	if t.T == abi.SliceTy {
		out = reflect.MakeSlice(t.GetType(), len(items), len(items))
	} else {
		if len(items) != t.Size {
			return nil, fmt.Errorf("expected %d elements for %s, got %d", t.Size, t, len(items))
		}
		out = reflect.New(t.GetType()).Elem()
	}
	for i, item := range items {
		v, err := convertArg(*t.Elem, item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(reflect.ValueOf(v))
	}
	return out.Interface(), nil
}

func scalarString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("unexpected value %v", raw)
	}
}

var errIntegerRange = errors.New("integer out of range")

func convertInteger(t abi.Type, s string) (any, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}

	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return nil, fmt.Errorf("%w: %s for %s", errIntegerRange, s, t)
		}
		switch t.Size {
		case 8:
			return uint8(n.Uint64()), nil
		case 16:
			return uint16(n.Uint64()), nil
		case 32:
			return uint32(n.Uint64()), nil
		case 64:
			return n.Uint64(), nil
		}
		return n, nil
	}

	magnitude := new(big.Int).Set(n)
	if n.Sign() < 0 {
		magnitude.Neg(magnitude).Sub(magnitude, big.NewInt(1))
	}
	if magnitude.BitLen() > t.Size-1 {
		return nil, fmt.Errorf("%w: %s for %s", errIntegerRange, s, t)
	}
	switch t.Size {
	case 8:
		return int8(n.Int64()), nil
	case 16:
		return int16(n.Int64()), nil
	case 32:
		return int32(n.Int64()), nil
	case 64:
		return n.Int64(), nil
	}
	return n, nil
}

// formatOutputs renders unpacked return values as JSON friendly values.
func formatOutputs(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = formatValue(reflect.ValueOf(v))
	}
	return out
}

func formatValue(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	switch x := v.Interface().(type) {
	case *big.Int:
		return x.String()
	case common.Address:
		return x.Hex()
	case []byte:
		return hexutil.Encode(x)
	}

	switch v.Kind() {
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			return hexutil.Encode(b)
		}
		fallthrough
	case reflect.Slice:
		items := make([]any, v.Len())
		for i := range items {
			items[i] = formatValue(v.Index(i))
		}
		return items
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	}
	return v.Interface()
}

// concat returns a ++ b without aliasing either.
func concat(a, b []byte) []byte {
	return bytes.Join([][]byte{a, b}, nil)
}
