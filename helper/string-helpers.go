package helper

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/relloyd/casepipe/constants"
)

var reIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// AtomBool is a bool that can be shared between goroutines.
type AtomBool struct {
	flag int32
}

func (b *AtomBool) Set(value bool) {
	var i int32 = 0
	if value {
		i = 1
	}
	atomic.StoreInt32(&b.flag, i)
}

func (b *AtomBool) Get() bool {
	return atomic.LoadInt32(&b.flag) != 0
}

// GetStringFromInterface converts v into the text written to delimited output files.
// Nil values become an empty string. Times are written in UTC.
func GetStringFromInterface(v interface{}) (retval string, err error) {
	switch x := v.(type) {
	case nil:
		retval = ""
	case string:
		retval = x
	case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		retval = fmt.Sprintf("%d", x)
	case float32:
		retval = strconv.FormatFloat(float64(x), 'f', -1, 32) // use 'f' to convert float to string without an exponent.
	case float64:
		retval = strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		retval = strconv.FormatBool(x)
	case time.Time:
		retval = x.UTC().Format(constants.TimeFormatTimestamp)
	case []byte:
		retval = string(x)
	default:
		err = fmt.Errorf("unhandled type while fetching string from interface: type = %v; value = %v", reflect.TypeOf(v), v)
	}
	return
}

// GetTrueFalseStringAsBool trims spaces from s and checks if it can regexp (case insensitive) match "true".
// It returns true if there's a match else false.
func GetTrueFalseStringAsBool(s string) bool {
	re := regexp.MustCompile("(?i)^(true|1|yes)$")
	return re.MatchString(strings.TrimSpace(s))
}

// IsValidIdentifier returns true if s can be used unquoted as a database or table name.
func IsValidIdentifier(s string) bool {
	return reIdentifier.MatchString(s)
}

// Split returns t, u if s is of the form t c u, else s, "".
func Split(s string, c string) (string, string) {
	i := strings.Index(s, c)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+len(c):]
}

// SplitRight returns t, u if s is of the form t c u where c is the last occurrence, else s, "".
func SplitRight(s string, c string) (string, string) {
	i := strings.LastIndex(s, c)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+len(c):]
}
