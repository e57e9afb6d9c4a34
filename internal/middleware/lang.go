package middleware

import (
	"strings"

	"github.com/haierkeys/notegpt-sync-service/pkg/code"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
)

// TransKey gin.Context 中存储校验翻译器的键
const TransKey = "trans"

// LangWithTranslator 创建带翻译器的语言中间件（支持依赖注入）
func LangWithTranslator(uni *ut.UniversalTranslator) gin.HandlerFunc {

	return func(c *gin.Context) {

		var lang string

		if s, exist := c.GetQuery("lang"); exist {
			lang = s
		} else if s = c.GetHeader("lang"); len(s) != 0 {
			lang = s
		}

		lang = strings.ToLower(strings.ReplaceAll(lang, "-", "_"))

		if trans, found := uni.GetTranslator(lang); found {
			c.Set(TransKey, trans)
		} else {
			trans, _ := uni.GetTranslator("en")
			c.Set(TransKey, trans)
		}

		_ = code.SetGlobalDefaultLang(lang)

		c.Next()
	}
}

// Translator 返回当前请求的校验翻译器
func Translator(c *gin.Context) ut.Translator {
	if v, ok := c.Get(TransKey); ok {
		if t, ok := v.(ut.Translator); ok {
			return t
		}
	}
	return nil
}
