package code

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// Language identifiers accepted by SetGlobalDefaultLang
// SetGlobalDefaultLang 接受的语言标识
const (
	LangEN   = "en"
	LangZhCN = "zh_cn"

	FALLBACK_LNG = LangEN
)

var supportedLanguages = []string{LangEN, LangZhCN}

// lang bilingual message text
// lang 双语消息文本
type lang struct {
	en    string
	zh_cn string
}

// current language, written by the lang middleware on every request.
// The package level codes read it during package initialization.
var lng = newLangValue(FALLBACK_LNG)

func newLangValue(language string) *atomic.Value {
	v := &atomic.Value{}
	v.Store(language)
	return v
}

func (l lang) text(language string) string {
	switch language {
	case LangZhCN:
		return l.zh_cn
	case LangEN:
		return l.en
	}
	return ""
}

// GetMessage returns the message in the current language, falling back to English
// GetMessage 返回当前语言的消息，缺失时回退到英文
func (l lang) GetMessage() string {
	if s := l.text(GetGlobalDefaultLang()); s != "" {
		return s
	}
	if s := l.text(FALLBACK_LNG); s != "" {
		return s
	}
	return l.zh_cn
}

// GetSupportedLanguages 返回支持的语言列表
func GetSupportedLanguages() []string {
	out := make([]string, len(supportedLanguages))
	copy(out, supportedLanguages)
	return out
}

// SetGlobalDefaultLang switches the message language; an unknown value resets it to English
// SetGlobalDefaultLang 切换消息语言，未知值会重置为英文
func SetGlobalDefaultLang(language string) error {
	for _, s := range supportedLanguages {
		if s == language {
			lng.Store(language)
			return nil
		}
	}
	lng.Store(FALLBACK_LNG)
	return errors.Errorf("unsupported language %q, defaulting to %s", language, FALLBACK_LNG)
}

// GetGlobalDefaultLang 获取当前消息语言
func GetGlobalDefaultLang() string {
	if s, _ := lng.Load().(string); s != "" {
		return s
	}
	return FALLBACK_LNG
}
