// Package validator 基于 go-playground/validator 校验请求体，字段名取 json tag，
// 错误信息按 Accept-Language 在中英文之间切换。
package validator

import (
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// 支持的错误信息语言
const (
	LangEN = "en"
	LangZH = "zh"
)

// TagNotBlank 要求字符串去掉空白后仍有内容，用于标题、文件名、检索语句等字段。
const TagNotBlank = "notblank"

type registerFunc func(*validator.Validate, ut.Translator) error

// Validator 持有校验引擎和各语言的翻译器，初始化后只读，可并发使用。
type Validator struct {
	validate *validator.Validate
	trans    map[string]ut.Translator
}

var (
	global     *Validator
	globalOnce sync.Once
)

// Global 返回进程内共享的校验器。
func Global() *Validator {
	globalOnce.Do(func() { global = New() })
	return global
}

// New 创建校验器并注册中英文翻译与自定义规则。
func New() *Validator {
	v := &Validator{
		validate: validator.New(),
		trans:    make(map[string]ut.Translator, 2),
	}
	v.validate.RegisterTagNameFunc(fieldName)

	locs := []struct {
		lang     string
		locale   locales.Translator
		register registerFunc
	}{
		{LangEN, en.New(), en_translations.RegisterDefaultTranslations},
		{LangZH, zh.New(), zh_translations.RegisterDefaultTranslations},
	}
	uni := ut.New(locs[0].locale, locs[0].locale, locs[1].locale)
	for _, l := range locs {
		trans, _ := uni.GetTranslator(l.lang)
		_ = l.register(v.validate, trans)
		v.trans[l.lang] = trans
	}

	_ = v.RegisterValidationWithTranslation(TagNotBlank, notBlank, map[string]string{
		LangEN: "{0} must not be blank",
		LangZH: "{0}不能为空白",
	})
	return v
}

// fieldName 以 json tag 命名字段，其次 form tag，都没有时用 Go 字段名。
func fieldName(fld reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(fld.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

func notBlank(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() != reflect.String {
		return true
	}
	return strings.IndexFunc(f.String(), func(r rune) bool { return !unicode.IsSpace(r) }) >= 0
}

// Validate 校验结构体并返回底层错误。
func (v *Validator) Validate(s interface{}) error {
	return v.validate.Struct(s)
}

// ValidateWithLang 校验结构体，失败时返回翻译后的字段错误；通过时返回 nil。
func (v *Validator) ValidateWithLang(s interface{}, lang string) *ValidationErrors {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// 传入的不是结构体
		return NewValidationError("", "invalid", err.Error())
	}

	trans := v.GetTranslator(lang)
	out := &ValidationErrors{Errors: make([]FieldError, len(fieldErrs))}
	for i, fe := range fieldErrs {
		out.Errors[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Value:   fe.Value(),
			Param:   fe.Param(),
			Message: fe.Translate(trans),
		}
	}
	return out
}

// GetTranslator 返回指定语言的翻译器，未知语言回退到英文。
func (v *Validator) GetTranslator(lang string) ut.Translator {
	if trans, ok := v.trans[lang]; ok {
		return trans
	}
	return v.trans[LangEN]
}

// RegisterValidationWithTranslation 注册自定义规则及其各语言提示，{0} 会被替换为字段名。
// 只能在并发使用前调用。
func (v *Validator) RegisterValidationWithTranslation(tag string, fn validator.Func, messages map[string]string) error {
	if err := v.validate.RegisterValidation(tag, fn); err != nil {
		return err
	}
	for lang, msg := range messages {
		trans, ok := v.trans[lang]
		if !ok {
			continue
		}
		msg := msg
		err := v.validate.RegisterTranslation(tag, trans,
			func(t ut.Translator) error { return t.Add(tag, msg, true) },
			func(t ut.Translator, fe validator.FieldError) string {
				s, _ := t.T(tag, fe.Field())
				return s
			},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// StructWithLang 使用全局校验器校验结构体。
func StructWithLang(s interface{}, lang string) *ValidationErrors {
	return Global().ValidateWithLang(s, lang)
}
