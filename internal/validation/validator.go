// Package validation はリクエスト入力の検証を提供する。
// go-playground/validator をラップし、エラーメッセージにはJSONのフィールド名を使う。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// 独自ルールのタグ名。
const (
	TagSlug          = "slug"
	TagPasswordBytes = "password_bytes"
)

// maxPasswordBytes はbcryptが扱える最大バイト長。これを超える部分は黙って切り捨てられる。
const maxPasswordBytes = 72

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validator は構造体タグに基づく入力検証を行う。並行利用しても安全。
type Validator struct {
	validate *validator.Validate
}

// New は独自ルールを登録したValidatorを生成する。
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// 登録は起動時のみで、タグ名が重複しない限り失敗しない
	_ = v.RegisterValidation(TagSlug, func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return len(s) <= 100 && slugPattern.MatchString(s)
	})
	_ = v.RegisterValidation(TagPasswordBytes, func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	})

	return &Validator{validate: v}
}

// Struct は構造体を検証する。違反があれば*FieldErrorsを返す。
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("入力検証に失敗しました: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = message(fe)
	}
	return &FieldErrors{Fields: fields}
}

// IsSlug は文字列がスラッグとして有効かどうかを返す。
func (v *Validator) IsSlug(s string) bool {
	return v.validate.Var(s, "required,"+TagSlug) == nil
}

// FieldErrors はフィールドごとの検証エラー。
type FieldErrors struct {
	Fields map[string]string
}

// Error はフィールド名順に連結したメッセージを返す。
func (e *FieldErrors) Error() string {
	return e.Detail()
}

// Detail はAPIエラーに載せる詳細文字列を返す。
func (e *FieldErrors) Detail() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, e.Fields[name])
	}
	return strings.Join(parts, ", ")
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s は必須です", field)
	case "email":
		return fmt.Sprintf("%s はメールアドレスの形式ではありません", field)
	case "min":
		return fmt.Sprintf("%s は%s文字以上で入力してください", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s は%s文字以内で入力してください", field, fe.Param())
	case "uuid":
		return fmt.Sprintf("%s はUUIDの形式ではありません", field)
	case TagSlug:
		return fmt.Sprintf("%s は英小文字・数字・ハイフンのみ使用できます", field)
	case TagPasswordBytes:
		return fmt.Sprintf("%s は%dバイト以内で入力してください", field, maxPasswordBytes)
	default:
		return fmt.Sprintf("%s が不正です", field)
	}
}
