// Package envconf fills configuration structs from environment variables.
//
// A field is bound with `env:"NAME"`. Without a `default:"..."` tag the
// variable is required. Untagged struct fields (and pointers to structs)
// are walked recursively, so service configs can be assembled from shared
// blocks. Fields tagged `secret:"true"` are masked by Redacted.
package envconf

import (
	"encoding"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingRequired = errors.New("missing required environment variable")
	ErrUnsupportedType = errors.New("unsupported field type")
	ErrBadDestination  = errors.New("destination must be a non-nil pointer to a struct")
)

// FieldError reports one variable that could not be applied.
type FieldError struct {
	Var   string
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Var, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

var durationType = reflect.TypeOf(time.Duration(0))

// binding is one tagged leaf field found while walking a struct.
type binding struct {
	path   string
	name   string
	def    string
	hasDef bool
	secret bool
	value  reflect.Value
}

// Load sets every bound field of the struct dst points to. All problems
// are collected; the result joins one *FieldError per bad field.
func Load(dst any) error {
	root, err := structOf(dst)
	if err != nil {
		return err
	}

	var errs []error

	walk(root, "", func(b binding) {
		raw, ok := os.LookupEnv(b.name)
		if !ok {
			if !b.hasDef {
				errs = append(errs, &FieldError{Var: b.name, Field: b.path, Err: ErrMissingRequired})
				return
			}

			raw = b.def
		}

		perr := parse(b.value, raw)
		if perr != nil {
			errs = append(errs, &FieldError{Var: b.name, Field: b.path, Err: perr})
		}
	})

	return errors.Join(errs...)
}

// Redacted lists the bound variables of dst with their current values,
// masking secrets that are set. It is meant for startup logs.
func Redacted(dst any) map[string]string {
	root, err := structOf(dst)
	if err != nil {
		return nil
	}

	out := make(map[string]string)

	walk(root, "", func(b binding) {
		v := fmt.Sprint(b.value.Interface())
		if b.secret && v != "" {
			v = "***"
		}

		out[b.name] = v
	})

	return out
}

func structOf(dst any) (reflect.Value, error) {
	v := reflect.ValueOf(dst)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, ErrBadDestination
	}

	return v.Elem(), nil
}

func walk(v reflect.Value, prefix string, visit func(binding)) {
	t := v.Type()

	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		fv := v.Field(i)
		path := prefix + sf.Name

		name := sf.Tag.Get("env")
		if name == "-" {
			continue
		}

		if name == "" {
			switch {
			case fv.Kind() == reflect.Struct:
				walk(fv, path+".", visit)
			case fv.Kind() == reflect.Pointer && fv.Type().Elem().Kind() == reflect.Struct:
				if fv.IsNil() {
					fv.Set(reflect.New(fv.Type().Elem()))
				}

				walk(fv.Elem(), path+".", visit)
			}

			continue
		}

		def, hasDef := sf.Tag.Lookup("default")
		secret, _ := strconv.ParseBool(sf.Tag.Get("secret"))

		visit(binding{path: path, name: name, def: def, hasDef: hasDef, secret: secret, value: fv})
	}
}

//nolint:cyclop
func parse(fv reflect.Value, raw string) error {
	if fv.CanAddr() {
		if u, ok := fv.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return u.UnmarshalText([]byte(raw))
		}
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}

		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if fv.Type() == durationType {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return err
			}

			fv.SetInt(int64(d))

			return nil
		}

		n, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return err
		}

		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, fv.Type().Bits())
		if err != nil {
			return err
		}

		fv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, fv.Type().Bits())
		if err != nil {
			return err
		}

		fv.SetFloat(f)
	case reflect.Pointer:
		elem := reflect.New(fv.Type().Elem())

		err := parse(elem.Elem(), raw)
		if err != nil {
			return err
		}

		fv.Set(elem)
	case reflect.Slice:
		return parseList(fv, raw)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, fv.Type())
	}

	return nil
}

// parseList splits raw on commas and drops blank items.
func parseList(fv reflect.Value, raw string) error {
	out := reflect.MakeSlice(fv.Type(), 0, strings.Count(raw, ",")+1)

	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		elem := reflect.New(fv.Type().Elem()).Elem()

		err := parse(elem, item)
		if err != nil {
			return fmt.Errorf("item %q: %w", item, err)
		}

		out = reflect.Append(out, elem)
	}

	fv.Set(out)

	return nil
}
