package app

import (
	"strings"

	"github.com/haierkeys/notegpt-sync-service/pkg/validator"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
)

// ValidError 单个字段的校验错误
type ValidError struct {
	Key     string
	Message string
}

// ValidErrors 请求参数校验错误集合
type ValidErrors []*ValidError

func (v *ValidError) Error() string {
	return v.Message
}

func (v ValidErrors) Error() string {
	return strings.Join(v.Errors(), ",")
}

// Errors 返回全部错误信息
func (v ValidErrors) Errors() []string {
	var errs []string
	for _, err := range v {
		errs = append(errs, err.Error())
	}
	return errs
}

// ErrorsToString 以逗号拼接的错误信息
func (v ValidErrors) ErrorsToString() string {
	return v.Error()
}

// MapsToString field -> message, suitable for the Res data field
// MapsToString 字段到错误信息的映射，用于响应 data
func (v ValidErrors) MapsToString() map[string]string {
	m := make(map[string]string, len(v))
	for _, err := range v {
		m[err.Key] = err.Message
	}
	return m
}

// BindAndValid binds the request into v and runs the binding validator.
// Messages are translated with the translator the lang middleware stored under "trans".
// BindAndValid 绑定请求参数并校验，错误信息使用 lang 中间件设置的翻译器
func BindAndValid(c *gin.Context, v any) (bool, ValidErrors) {
	var errs ValidErrors
	err := c.ShouldBind(v)
	if err == nil {
		return true, nil
	}

	var trans ut.Translator
	if t, ok := c.Get("trans"); ok {
		trans, _ = t.(ut.Translator)
	}

	for _, msg := range validator.Messages(err, trans) {
		key, text, found := strings.Cut(msg, ": ")
		if !found {
			key, text = "request", msg
		}
		errs = append(errs, &ValidError{Key: key, Message: text})
	}
	return false, errs
}
