package service

import (
	"reflect"
	"testing"
)

func TestBuildDependencyMapDefault(t *testing.T) {
	deps := BuildDependencyMap(DefaultFormulas())

	want := DependencyMap{
		"USDTRY": {"USDTRY", "EURTRY", "GBPTRY"},
		"EURUSD": {"EURTRY"},
		"GBPUSD": {"GBPTRY"},
	}
	if !reflect.DeepEqual(deps, want) {
		t.Fatalf("dependency map = %v, want %v", deps, want)
	}
}

func TestValidateFormulas(t *testing.T) {
	if err := ValidateFormulas(DefaultFormulas()); err != nil {
		t.Fatalf("default formulas invalid: %v", err)
	}
	if err := ValidateFormulas(nil); err == nil {
		t.Error("expected error for empty table")
	}
	dup := []Formula{Direct("USDTRY"), Direct("USDTRY")}
	if err := ValidateFormulas(dup); err == nil {
		t.Error("expected error for duplicate target")
	}
	if err := ValidateFormulas([]Formula{Cross("EURTRY", "USDTRY", "")}); err == nil {
		t.Error("expected error for missing leg")
	}
}

func TestFormulaInputs(t *testing.T) {
	if got := Cross("EURTRY", "USDTRY", "EURUSD").Inputs(); !reflect.DeepEqual(got, []string{"USDTRY", "EURUSD"}) {
		t.Errorf("cross inputs = %v", got)
	}
	if got := Direct("USDTRY").Inputs(); !reflect.DeepEqual(got, []string{"USDTRY"}) {
		t.Errorf("direct inputs = %v", got)
	}
}
