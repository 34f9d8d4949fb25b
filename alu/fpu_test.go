package alu

import (
	"math"
	"testing"
)

func TestFPUSqrt(t *testing.T) {
	var f FPU
	result := f.Execute(FpuOpSqrt, 16.0, 0, PrecisionDouble)
	if result != 4.0 {
		t.Errorf("sqrt(16) = %v, want 4.0", result)
	}
	if f.Status&StatusInvalid != 0 {
		t.Error("unexpected Invalid flag for sqrt(16)")
	}

	f = FPU{}
	result = f.Execute(FpuOpSqrt, -1.0, 0, PrecisionDouble)
	if !math.IsNaN(result) {
		t.Errorf("sqrt(-1) = %v, want NaN", result)
	}
	if f.Status&StatusInvalid == 0 {
		t.Error("expected Invalid flag for sqrt(-1)")
	}
}

func TestFPUDivByZero(t *testing.T) {
	var f FPU
	result := f.Execute(FpuOpDiv, 1.0, 0.0, PrecisionDouble)
	if !math.IsInf(result, 1) {
		t.Errorf("1/0 = %v, want +Inf", result)
	}
	if f.Status&StatusDivByZero == 0 {
		t.Error("expected DivByZero flag")
	}

	// The infinity's sign comes from the dividend alone; a negative
	// zero divisor must not flip it.
	f = FPU{}
	result = f.Execute(FpuOpDiv, 5.0, math.Copysign(0, -1), PrecisionDouble)
	if !math.IsInf(result, 1) {
		t.Errorf("5/-0 = %v, want +Inf (sign from the dividend)", result)
	}
	f = FPU{}
	result = f.Execute(FpuOpDiv, -5.0, 0.0, PrecisionDouble)
	if !math.IsInf(result, -1) {
		t.Errorf("-5/0 = %v, want -Inf", result)
	}

	f = FPU{}
	result = f.Execute(FpuOpDiv, 0.0, 0.0, PrecisionDouble)
	if !math.IsNaN(result) {
		t.Errorf("0/0 = %v, want NaN", result)
	}
	if f.Status&StatusDivByZero == 0 {
		t.Error("expected DivByZero flag for 0/0")
	}
}

func TestFPUMinMaxNaN(t *testing.T) {
	var f FPU
	result := f.Execute(FpuOpMin, math.NaN(), 1.0, PrecisionDouble)
	if !math.IsNaN(result) {
		t.Error("Min with NaN operand must return NaN")
	}
	if f.Status&StatusInvalid == 0 {
		t.Error("expected Invalid flag for Min(NaN, 1)")
	}
}

func TestFPUCmp(t *testing.T) {
	var f FPU
	if v := f.Execute(FpuOpCmp, 1.0, 2.0, PrecisionDouble); v != -1 {
		t.Errorf("cmp(1,2) = %v, want -1", v)
	}
	if v := f.Execute(FpuOpCmp, 2.0, 1.0, PrecisionDouble); v != 1 {
		t.Errorf("cmp(2,1) = %v, want 1", v)
	}
	if v := f.Execute(FpuOpCmp, 1.0, 1.0, PrecisionDouble); v != 0 {
		t.Errorf("cmp(1,1) = %v, want 0", v)
	}
}

func TestFPUSinglePrecisionNarrowing(t *testing.T) {
	var f FPU
	// A double value not exactly representable in f32 should set Inexact.
	result := f.Execute(FpuOpAdd, 0.1, 0.2, PrecisionSingle)
	if f.Status&StatusInexact == 0 {
		t.Error("expected Inexact flag for single-precision 0.1+0.2")
	}
	if math.Abs(result-0.3) > 1e-6 {
		t.Errorf("0.1+0.2 (single) = %v, want ~0.3", result)
	}
}

func TestFPURoundingModes(t *testing.T) {
	var f FPU
	// ToNearest rounds half-cases away from zero, not to even.
	if v := f.Execute(FpuOpRound, 2.5, 0, PrecisionDouble); v != 3.0 {
		t.Errorf("ToNearest round(2.5) = %v, want 3.0", v)
	}
	if v := f.Execute(FpuOpRound, -2.5, 0, PrecisionDouble); v != -3.0 {
		t.Errorf("ToNearest round(-2.5) = %v, want -3.0", v)
	}
	f.Rounding = TowardZero
	if v := f.Execute(FpuOpRound, 2.7, 0, PrecisionDouble); v != 2.0 {
		t.Errorf("TowardZero round(2.7) = %v, want 2.0", v)
	}
	f.Rounding = TowardPosInf
	if v := f.Execute(FpuOpRound, 2.1, 0, PrecisionDouble); v != 3.0 {
		t.Errorf("TowardPosInf round(2.1) = %v, want 3.0", v)
	}
	f.Rounding = TowardNegInf
	if v := f.Execute(FpuOpRound, 2.9, 0, PrecisionDouble); v != 2.0 {
		t.Errorf("TowardNegInf round(2.9) = %v, want 2.0", v)
	}
}
