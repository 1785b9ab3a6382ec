package tabledefinition

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/helper"
	"github.com/pkg/errors"
)

var ErrCastFailed = errors.New("cast failed")

// timestampLayouts are tried in order when parsing timestamps from text.
// Values without a zone are taken to be UTC.
var timestampLayouts = []string{
	c.TimeFormatTimestamp,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05Z07:00",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04 PM",
	"1/2/2006 3:04:05 PM",
	c.TimeFormatDate,
	"1/2/2006",
}

// ParseTimestamp parses s using the supported layouts and returns the time in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Wrapf(ErrCastFailed, "unable to parse %q as a timestamp", s)
}

// CastValue converts v to the Go type used for t:
// string, int32, int64, float64, bool or time.Time (UTC, truncated to midnight for dates).
// Nil and empty strings become nil.
// Errors wrap ErrCastFailed.
func CastValue(v interface{}, t DataType) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" { // if the field is empty...
		return nil, nil
	}
	switch t {
	case TypeString:
		s, err := helper.GetStringFromInterface(v)
		if err != nil {
			return nil, errors.Wrap(ErrCastFailed, err.Error())
		}
		return s, nil
	case TypeInt:
		i, err := castInteger(v, 32)
		if err != nil {
			return nil, err
		}
		return int32(i), nil
	case TypeBigint:
		return castInteger(v, 64)
	case TypeDouble:
		return castDouble(v)
	case TypeBoolean:
		return castBoolean(v)
	case TypeTimestamp:
		return castTime(v)
	case TypeDate:
		ts, err := castTime(v)
		if err != nil {
			return nil, err
		}
		return ts.Truncate(24 * time.Hour), nil
	default:
		return nil, fmt.Errorf("unsupported data type %q", t)
	}
}

func castInteger(v interface{}, bitSize int) (int64, error) {
	var i int64
	switch x := v.(type) {
	case int:
		i = int64(x)
	case int32:
		i = int64(x)
	case int64:
		i = x
	case float64:
		if x != math.Trunc(x) {
			return 0, errors.Wrapf(ErrCastFailed, "value %v is not a whole number", x)
		}
		i = int64(x)
	case string, []byte:
		s, _ := helper.GetStringFromInterface(x)
		var err error
		i, err = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrCastFailed, "unable to parse %q as an integer", s)
		}
	default:
		return 0, errors.Wrapf(ErrCastFailed, "unable to cast %T to an integer", v)
	}
	if bitSize == 32 && (i > math.MaxInt32 || i < math.MinInt32) {
		return 0, errors.Wrapf(ErrCastFailed, "value %v overflows int", i)
	}
	return i, nil
}

func castDouble(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string, []byte:
		s, _ := helper.GetStringFromInterface(x)
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, errors.Wrapf(ErrCastFailed, "unable to parse %q as a double", s)
		}
		return f, nil
	default:
		return 0, errors.Wrapf(ErrCastFailed, "unable to cast %T to a double", v)
	}
}

func castBoolean(v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case string, []byte:
		s, _ := helper.GetStringFromInterface(x)
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		}
		return false, errors.Wrapf(ErrCastFailed, "unable to parse %q as a boolean", s)
	default:
		return false, errors.Wrapf(ErrCastFailed, "unable to cast %T to a boolean", v)
	}
}

func castTime(v interface{}) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string, []byte:
		s, _ := helper.GetStringFromInterface(x)
		return ParseTimestamp(s)
	default:
		return time.Time{}, errors.Wrapf(ErrCastFailed, "unable to cast %T to a timestamp", v)
	}
}
