package actions

import (
	"fmt"
	"strings"
)

// Mode is the ETL load mode.
type Mode string

const (
	ModeFull  Mode = "FULL"  // reprocess every source partition.
	ModeDelta Mode = "DELTA" // load partitions newer than the materialized table.
)

// ParseMode accepts full or delta in any case.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

func (m Mode) Validate() error {
	switch m {
	case ModeFull, ModeDelta:
		return nil
	default:
		return fmt.Errorf("unsupported load mode %q: use %v or %v", string(m), ModeFull, ModeDelta)
	}
}
