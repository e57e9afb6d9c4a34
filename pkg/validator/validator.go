// Package validator go-playground validator shared by gin binding and WebSocket payloads
// Package validator gin 参数绑定与 WebSocket 消息共用的校验器
package validator

import (
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/pkg/errors"
)

// MaxEntityIDLength longest accepted entity id
const MaxEntityIDLength = 191

// CustomValidator lazily built validator keyed on one struct tag name
// CustomValidator 按指定结构体标签名延迟构建的校验器
type CustomValidator struct {
	once     sync.Once
	tagName  string
	validate *validator.Validate
	uni      *ut.UniversalTranslator
	initErr  error
}

// NewCustomValidator tagName is "binding" for gin and "validate" for protocol messages
// NewCustomValidator gin 使用 "binding"，协议消息使用 "validate"
func NewCustomValidator(tagName string) *CustomValidator {
	if tagName == "" {
		tagName = "validate"
	}
	return &CustomValidator{tagName: tagName}
}

func (v *CustomValidator) lazyinit() {
	v.once.Do(func() {
		v.validate = validator.New()
		v.validate.SetTagName(v.tagName)
		v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		if err := RegisterCustom(v.validate); err != nil {
			v.initErr = err
			return
		}

		v.uni = ut.New(en.New(), en.New(), zh.New())
		zhTran, _ := v.uni.GetTranslator("zh")
		enTran, _ := v.uni.GetTranslator("en")
		if err := zh_translations.RegisterDefaultTranslations(v.validate, zhTran); err != nil {
			v.initErr = errors.Wrap(err, "register zh translations")
			return
		}
		if err := en_translations.RegisterDefaultTranslations(v.validate, enTran); err != nil {
			v.initErr = errors.Wrap(err, "register en translations")
		}
	})
}

// Init builds the validator now and reports any registration failure
// Init 立即构建校验器并返回注册错误
func (v *CustomValidator) Init() error {
	v.lazyinit()
	return v.initErr
}

// ValidateStruct implements gin's binding.StructValidator
func (v *CustomValidator) ValidateStruct(obj any) error {
	if obj == nil {
		return nil
	}
	value := reflect.ValueOf(obj)
	switch value.Kind() {
	case reflect.Ptr:
		if value.IsNil() {
			return nil
		}
		if value.Elem().Kind() != reflect.Struct {
			return v.ValidateStruct(value.Elem().Interface())
		}
		return v.validateStruct(obj)
	case reflect.Struct:
		return v.validateStruct(obj)
	case reflect.Slice, reflect.Array:
		for i := 0; i < value.Len(); i++ {
			if err := v.ValidateStruct(value.Index(i).Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *CustomValidator) validateStruct(obj any) error {
	v.lazyinit()
	return v.validate.Struct(obj)
}

// Engine implements gin's binding.StructValidator
func (v *CustomValidator) Engine() any {
	v.lazyinit()
	return v.validate
}

// Universal 返回多语言翻译器集合
func (v *CustomValidator) Universal() *ut.UniversalTranslator {
	v.lazyinit()
	return v.uni
}

// Translator returns the translator for locale, falling back to en
// Translator 返回指定语言的翻译器，找不到时回退到 en
func (v *CustomValidator) Translator(locale string) ut.Translator {
	v.lazyinit()
	if t, ok := v.uni.GetTranslator(locale); ok {
		return t
	}
	t, _ := v.uni.GetTranslator("en")
	return t
}

// Messages flattens a validation error into translated "field: message" strings
// Messages 将校验错误展开为翻译后的 "字段: 信息" 列表
func Messages(err error, trans ut.Translator) []string {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Error()
		if trans != nil {
			msg = fe.Translate(trans)
		}
		out = append(out, fe.Field()+": "+msg)
	}
	return out
}

// RegisterCustom registers the project's custom rules on v
// RegisterCustom 注册项目自定义的校验规则
//
//	entityid: non-empty, at most 191 characters, no whitespace
func RegisterCustom(v *validator.Validate) error {
	return errors.Wrap(v.RegisterValidation("entityid", isEntityID), "register entityid")
}

func isEntityID(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || utf8.RuneCountInString(s) > MaxEntityIDLength {
		return false
	}
	return strings.IndexFunc(s, unicode.IsSpace) < 0
}
