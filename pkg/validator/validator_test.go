package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID   string `json:"id" validate:"entityid"`
	Name string `json:"name" validate:"required"`
}

type bindingSample struct {
	Input string `json:"input" binding:"required,max=5"`
}

func TestCustomValidator_EntityID(t *testing.T) {
	v := NewCustomValidator("validate")
	require.NoError(t, v.Init())

	assert.NoError(t, v.ValidateStruct(&sample{ID: "n1", Name: "x"}))
	assert.Error(t, v.ValidateStruct(&sample{ID: "", Name: "x"}))
	assert.Error(t, v.ValidateStruct(&sample{ID: "has space", Name: "x"}))
	assert.Error(t, v.ValidateStruct(&sample{ID: strings.Repeat("a", MaxEntityIDLength+1), Name: "x"}))
	assert.NoError(t, v.ValidateStruct(&sample{ID: strings.Repeat("笔", MaxEntityIDLength), Name: "x"}))
}

func TestCustomValidator_NonStructsAndSlices(t *testing.T) {
	v := NewCustomValidator("validate")

	assert.NoError(t, v.ValidateStruct(nil))
	assert.NoError(t, v.ValidateStruct(42))
	var nilPtr *sample
	assert.NoError(t, v.ValidateStruct(nilPtr))
	assert.Error(t, v.ValidateStruct([]sample{{ID: "a", Name: "b"}, {ID: "c"}}))
}

func TestCustomValidator_BindingTagAndTranslations(t *testing.T) {
	v := NewCustomValidator("binding")

	err := v.ValidateStruct(&bindingSample{Input: "toolong"})
	require.Error(t, err)

	en := Messages(err, v.Translator("en"))
	require.Len(t, en, 1)
	assert.True(t, strings.HasPrefix(en[0], "input: "), en[0])

	zh := Messages(err, v.Translator("zh"))
	require.Len(t, zh, 1)
	assert.NotEqual(t, en[0], zh[0])

	// unknown locales fall back to en
	assert.Equal(t, en, Messages(err, v.Translator("fr")))
}
