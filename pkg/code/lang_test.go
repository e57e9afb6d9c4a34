package code

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackageCodesHaveMessagesAtInit(t *testing.T) {
	assert.Equal(t, LangEN, GetGlobalDefaultLang())
	assert.Equal(t, "Success", Success.Msg())
	assert.Equal(t, "Server internal error", ErrorServerInternal.Msg())
}

func TestSetGlobalDefaultLang(t *testing.T) {
	t.Cleanup(func() { _ = SetGlobalDefaultLang(LangEN) })

	assert.NoError(t, SetGlobalDefaultLang(LangZhCN))
	assert.Equal(t, "存储失败", ErrorStorageFailure.Lang.GetMessage())

	assert.Error(t, SetGlobalDefaultLang("fr"))
	assert.Equal(t, LangEN, GetGlobalDefaultLang())
	assert.Equal(t, "Storage failure", ErrorStorageFailure.Lang.GetMessage())
}

func TestGetMessage_Fallback(t *testing.T) {
	t.Cleanup(func() { _ = SetGlobalDefaultLang(LangEN) })

	onlyEN := lang{en: "hello"}
	assert.NoError(t, SetGlobalDefaultLang(LangZhCN))
	assert.Equal(t, "hello", onlyEN.GetMessage())

	onlyZH := lang{zh_cn: "你好"}
	assert.NoError(t, SetGlobalDefaultLang(LangEN))
	assert.Equal(t, "你好", onlyZH.GetMessage())
}

func TestGetSupportedLanguages_ReturnsCopy(t *testing.T) {
	langs := GetSupportedLanguages()
	langs[0] = "xx"
	assert.Equal(t, []string{LangEN, LangZhCN}, GetSupportedLanguages())
}
