// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/recheck/pkg/types"
)

func TestNormalizeText(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name      string
		value     any
		fieldType types.FieldType
		want      string
	}{
		{"trim and collapse", "  Herman   Melville ", types.FieldTypeName, "Herman Melville"},
		{"title case name", "herman melville", types.FieldTypeName, "Herman Melville"},
		{"email lowercased", " Herman.Melville@Example.COM ", types.FieldTypeEmail, "herman.melville@example.com"},
		{"text preserves case", "Moby-Dick; Or, The Whale", types.FieldTypeText, "Moby-Dick; Or, The Whale"},
		{"accents stripped", "Café Müller", types.FieldTypeText, "Cafe Muller"},
		{"curly quotes unified", "“Call me Ishmael”", types.FieldTypeText, `"Call me Ishmael"`},
		{"em dash unified", "Moby—Dick", types.FieldTypeText, "Moby-Dick"},
		{"nil becomes empty", nil, types.FieldTypeText, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Normalize(tt.value, tt.fieldType, policy)
			require.True(t, res.OK, res.Reason)
			assert.Equal(t, tt.want, res.Text)
		})
	}
}

func TestNormalizeNumbers(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name  string
		value any
		want  string
		ok    bool
	}{
		{"plain integer", "42", "42", true},
		{"thousand separators", "1,234,567.89", "1234567.89", true},
		{"currency symbol", "$1,234.50", "1234.5", true},
		{"negative", "-17.25", "-17.25", true},
		{"numeric input", 12.5, "12.5", true},
		{"garbage", "twelve", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Normalize(tt.value, types.FieldTypeCurrency, policy)
			assert.Equal(t, tt.ok, res.OK)
			if tt.ok {
				assert.Equal(t, tt.want, res.Text)
			} else {
				assert.NotEmpty(t, res.Reason)
			}
		})
	}
}

func TestNormalizeNumberEuropeanLocale(t *testing.T) {
	policy := DefaultPolicy()
	policy.Numbers = NumberPolicy{
		DecimalSeparator:     ",",
		ThousandSeparator:    ".",
		StripCurrencySymbols: true,
	}

	res := Normalize("1.234,56 €", types.FieldTypeCurrency, policy)
	require.True(t, res.OK, res.Reason)
	assert.Equal(t, "1234.56", res.Text)

	// Re-normalizing the canonical form must not treat "." as a
	// thousand separator again.
	again := Normalize(res.Text, types.FieldTypeCurrency, policy)
	require.True(t, again.OK)
	assert.Equal(t, res.Text, again.Text)
}

func TestNormalizeDates(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		value string
		want  string
		ok    bool
	}{
		{"1851-10-18", "1851-10-18", true},
		{"10/18/1851", "1851-10-18", true},
		{"October 18, 1851", "1851-10-18", true},
		{"18th of October", "", false},
	}

	for _, tt := range tests {
		res := Normalize(tt.value, types.FieldTypeDate, policy)
		assert.Equal(t, tt.ok, res.OK, tt.value)
		if tt.ok {
			assert.Equal(t, tt.want, res.Text)
		}
	}
}

func TestNormalizeBoolean(t *testing.T) {
	policy := DefaultPolicy()

	for _, truthy := range []any{"yes", "TRUE", "1", "checked", true} {
		res := Normalize(truthy, types.FieldTypeBoolean, policy)
		require.True(t, res.OK)
		assert.True(t, res.Bool, truthy)
	}
	for _, falsy := range []any{"no", "false", "0", false} {
		res := Normalize(falsy, types.FieldTypeBoolean, policy)
		require.True(t, res.OK)
		assert.False(t, res.Bool, falsy)
	}

	res := Normalize("maybe", types.FieldTypeBoolean, policy)
	assert.False(t, res.OK)
}

func TestNormalizePhone(t *testing.T) {
	policy := DefaultPolicy()

	res := Normalize("+1 (555) 123-4567", types.FieldTypePhone, policy)
	require.True(t, res.OK)
	assert.Equal(t, "+15551234567", res.Text)

	res = Normalize("ext only", types.FieldTypePhone, policy)
	assert.False(t, res.OK)
}

// Normalization must be a fixed point: normalize(normalize(x)) == normalize(x).
func TestNormalizeIdempotent(t *testing.T) {
	policy := DefaultPolicy()

	inputs := []struct {
		value     string
		fieldType types.FieldType
	}{
		{"  Herman   Melville ", types.FieldTypeName},
		{"Café “Müller” — Berlin", types.FieldTypeText},
		{"$1,234.50", types.FieldTypeCurrency},
		{"10/18/1851", types.FieldTypeDate},
		{"+1 (555) 123-4567", types.FieldTypePhone},
		{"YES", types.FieldTypeBoolean},
		{"Herman.Melville@Example.COM", types.FieldTypeEmail},
	}

	for _, in := range inputs {
		first := Normalize(in.value, in.fieldType, policy)
		require.True(t, first.OK, first.Reason)
		second := Normalize(first.Text, in.fieldType, policy)
		require.True(t, second.OK, second.Reason)
		assert.Equal(t, first.Text, second.Text, "field type %s", in.fieldType)
	}
}

func TestNormalizeRejectsNonScalar(t *testing.T) {
	res := Normalize(map[string]string{"a": "b"}, types.FieldTypeText, DefaultPolicy())
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "unsupported value type")
}
