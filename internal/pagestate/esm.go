package pagestate

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	indent = "  "
	ret    = "\n"
	space  = " "
)

// Replacer lets the caller override the code generated for a value. key is
// the property name or array index that holds value, empty at the root.
// Returning ok=false falls back to the default serialization.
type Replacer func(key string, value any) (code string, ok bool)

var legalName = regexp.MustCompile(`^[$_a-zA-Z0-9]+$`)

// DataToESM converts a Go value into a JavaScript expression. Maps are
// emitted with sorted keys so the output is stable across runs. Structs
// are serialized through their JSON encoding.
func DataToESM(value any, replacer Replacer) string {
	var sb strings.Builder
	serialize(&sb, value, "", 0, replacer)
	return sb.String()
}

func serialize(sb *strings.Builder, value any, key string, depth int, replacer Replacer) {
	if replacer != nil {
		if code, ok := replacer(key, value); ok {
			sb.WriteString(code)
			return
		}
	}

	switch v := value.(type) {
	case nil:
		sb.WriteString("null")
		return
	case string:
		sb.WriteString(quote(v))
		return
	case bool:
		sb.WriteString(strconv.FormatBool(v))
		return
	case float64:
		sb.WriteString(formatFloat(v))
		return
	case float32:
		sb.WriteString(formatFloat(float64(v)))
		return
	case json.Number:
		sb.WriteString(v.String())
		return
	case time.Time:
		fmt.Fprintf(sb, "new Date(%d)", v.UnixMilli())
		return
	case *regexp.Regexp:
		sb.WriteString("/" + strings.ReplaceAll(v.String(), "/", `\/`) + "/")
		return
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err == nil {
			serialize(sb, decoded, key, depth, replacer)
			return
		}
		sb.WriteString("null")
		return
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			sb.WriteString("null")
			return
		}
		serialize(sb, rv.Elem().Interface(), key, depth, replacer)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sb.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		sb.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		sb.WriteString(formatFloat(rv.Float()))
	case reflect.String:
		sb.WriteString(quote(rv.String()))
	case reflect.Bool:
		sb.WriteString(strconv.FormatBool(rv.Bool()))
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			sb.WriteString("null")
			return
		}
		serializeArray(sb, rv, depth, replacer)
	case reflect.Map:
		if rv.IsNil() {
			sb.WriteString("null")
			return
		}
		serializeMap(sb, rv, depth, replacer)
	case reflect.Struct:
		data, err := json.Marshal(value)
		if err != nil {
			sb.WriteString("undefined")
			return
		}
		var decoded any
		_ = json.Unmarshal(data, &decoded)
		serialize(sb, decoded, key, depth, replacer)
	default:
		sb.WriteString("undefined")
	}
}

func serializeArray(sb *strings.Builder, rv reflect.Value, depth int, replacer Replacer) {
	n := rv.Len()
	if n == 0 {
		sb.WriteString("[]")
		return
	}
	base := strings.Repeat(indent, depth)
	sep := ret + base + indent
	sb.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(sep)
		serialize(sb, rv.Index(i).Interface(), strconv.Itoa(i), depth+1, replacer)
	}
	sb.WriteString(ret + base + "]")
}

func serializeMap(sb *strings.Builder, rv reflect.Value, depth int, replacer Replacer) {
	keys := make([]string, 0, rv.Len())
	values := make(map[string]reflect.Value, rv.Len())
	for _, k := range rv.MapKeys() {
		name := fmt.Sprint(k.Interface())
		keys = append(keys, name)
		values[name] = rv.MapIndex(k)
	}
	sort.Strings(keys)

	if len(keys) == 0 {
		sb.WriteString("{}")
		return
	}

	base := strings.Repeat(indent, depth)
	sep := ret + base + indent
	sb.WriteByte('{')
	for i, name := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(sep)
		if legalName.MatchString(name) {
			sb.WriteString(name)
		} else {
			sb.WriteString(quote(name))
		}
		sb.WriteString(":" + space)
		serialize(sb, values[name].Interface(), name, depth+1, replacer)
	}
	sb.WriteString(ret + base + "}")
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0 && math.Signbit(f):
		return "-0"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// quote renders s as a JSON string literal. Go's encoder already escapes
// U+2028 and U+2029, which are line terminators in JavaScript source.
func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
