package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Loaded(t *testing.T) {
	assert.Len(t, Options.Gender, 4)
	assert.Len(t, Options.Age, 6)
}

func TestGenderCode(t *testing.T) {
	tests := []struct {
		value string
		code  string
		ok    bool
	}{
		{"", "", true},
		{"Feminino", "Feminino", true},
		{"  feminino ", "Feminino", true},
		{"Na\u0303o-bina\u0301rio", "Não-binário", true}, // decomposed accents
		{"Robot", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			code, ok := Options.GenderCode(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestAgeCode_LabelAndCode(t *testing.T) {
	code, ok := Options.AgeCode("19 a 25 anos")
	require.True(t, ok)
	assert.Equal(t, "19-25", code)

	code, ok = Options.AgeCode("60+")
	require.True(t, ok)
	assert.Equal(t, "60+", code)

	assert.Equal(t, "Mais de 60 anos", Options.AgeLabel("60+"))
	assert.Equal(t, "Masculino", Options.GenderLabel("Masculino"))
	assert.Equal(t, "", Options.AgeLabel("unknown"))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Options.Validate(Demographics{}))
	assert.NoError(t, Options.Validate(Demographics{Gender: "Masculino", Age: "Até 18 anos"}))
	assert.Error(t, Options.Validate(Demographics{Age: "200"}))
	assert.Error(t, Options.Validate(Demographics{Gender: "x"}))
}

func TestLoadOptions_RequiresBothLists(t *testing.T) {
	_, err := LoadOptions([]byte("gender:\n  - code: a\n    label: A\n"))
	assert.Error(t, err)

	_, err = LoadOptions([]byte("gender: [oops"))
	assert.Error(t, err)
}

func TestQuestionKey(t *testing.T) {
	assert.Equal(t, FutureVision, QuestionKey(1))
	assert.Equal(t, MagicWand, QuestionKey(2))
	assert.Equal(t, WhatIsMissing, QuestionKey(3))
	assert.Equal(t, "", QuestionKey(0))
	assert.Equal(t, "", QuestionKey(4))
}
