package service

import (
	"errors"
	"fmt"
	"strings"
)

type FormulaKind int

const (
	// FormulaDirect averages one raw symbol across platforms.
	FormulaDirect FormulaKind = iota
	// FormulaCross multiplies the pivot mid by the leg bid/ask.
	FormulaCross
)

// Formula derives one target symbol from raw symbols.
type Formula struct {
	Target string
	Kind   FormulaKind
	Source string // direct only
	Pivot  string // cross only
	Leg    string // cross only
}

func Direct(symbol string) Formula {
	return Formula{Target: symbol, Kind: FormulaDirect, Source: symbol}
}

func Cross(target, pivot, leg string) Formula {
	return Formula{Target: target, Kind: FormulaCross, Pivot: pivot, Leg: leg}
}

// Inputs lists the raw symbols the formula reads.
func (f Formula) Inputs() []string {
	if f.Kind == FormulaCross {
		return []string{f.Pivot, f.Leg}
	}
	return []string{f.Source}
}

func (f Formula) String() string {
	if f.Kind == FormulaCross {
		return fmt.Sprintf("%s = mid(%s) * %s", f.Target, f.Pivot, f.Leg)
	}
	return fmt.Sprintf("%s = avg(%s)", f.Target, f.Source)
}

// DefaultFormulas is USDTRY direct, EURTRY and GBPTRY through the USDTRY pivot.
func DefaultFormulas() []Formula {
	return []Formula{
		Direct("USDTRY"),
		Cross("EURTRY", "USDTRY", "EURUSD"),
		Cross("GBPTRY", "USDTRY", "GBPUSD"),
	}
}

// ValidateFormulas rejects duplicate targets and incomplete entries.
func ValidateFormulas(formulas []Formula) error {
	if len(formulas) == 0 {
		return errors.New("no derived formulas")
	}
	seen := make(map[string]struct{}, len(formulas))
	for _, f := range formulas {
		if strings.TrimSpace(f.Target) == "" {
			return errors.New("formula with empty target")
		}
		if _, ok := seen[f.Target]; ok {
			return fmt.Errorf("duplicate formula for %s", f.Target)
		}
		seen[f.Target] = struct{}{}
		for _, in := range f.Inputs() {
			if strings.TrimSpace(in) == "" {
				return fmt.Errorf("formula %s has an empty input", f.Target)
			}
		}
	}
	return nil
}

// DependencyMap maps a raw symbol to the derived symbols that read it.
type DependencyMap map[string][]string

// BuildDependencyMap keeps formula order within each entry.
func BuildDependencyMap(formulas []Formula) DependencyMap {
	deps := make(DependencyMap)
	for _, f := range formulas {
		for _, in := range f.Inputs() {
			if !contains(deps[in], f.Target) {
				deps[in] = append(deps[in], f.Target)
			}
		}
	}
	return deps
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
