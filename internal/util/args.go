package util

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// DecodeArgs fills a new value of struct type t from string arguments keyed by
// wire name. Missing required fields and unknown names are reported as
// *ValidationError. The returned value has type t.
func DecodeArgs(t reflect.Type, fields []Field, input map[string]string) (reflect.Value, error) {
	isPtr := t.Kind() == reflect.Ptr
	base := t
	if isPtr {
		base = t.Elem()
	}
	out := reflect.New(base).Elem()

	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		known[f.Name] = struct{}{}
		raw, ok := input[f.Name]
		if !ok {
			if f.Required {
				return reflect.Value{}, &ValidationError{Field: f.Name, Message: "required field is missing"}
			}
			continue
		}
		if err := setString(out.Field(f.Index), raw); err != nil {
			return reflect.Value{}, &ValidationError{Field: f.Name, Value: raw, Message: err.Error()}
		}
	}

	for name, raw := range input {
		if _, ok := known[name]; !ok {
			return reflect.Value{}, &ValidationError{Field: name, Value: raw, Message: "unexpected argument"}
		}
	}

	if isPtr {
		return out.Addr(), nil
	}
	return out, nil
}

func setString(v reflect.Value, raw string) error {
	if v.Kind() == reflect.Ptr {
		elem := reflect.New(v.Type().Elem())
		if err := setString(elem.Elem(), raw); err != nil {
			return err
		}
		v.Set(elem)
		return nil
	}

	if v.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("expected duration: %w", err)
		}
		v.SetInt(int64(d))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("expected boolean: %w", err)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("expected integer: %w", err)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("expected unsigned integer: %w", err)
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("expected number: %w", err)
		}
		v.SetFloat(f)
	default:
		ptr := reflect.New(v.Type())
		if err := json.Unmarshal([]byte(raw), ptr.Interface()); err != nil {
			return fmt.Errorf("expected JSON %s: %w", getJSONType(v.Type()), err)
		}
		v.Set(ptr.Elem())
	}
	return nil
}
