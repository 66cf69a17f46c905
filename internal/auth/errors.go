package auth

import (
	"errors"
	"fmt"
)

// ErrorKind は認証・認可エラーの分類。
type ErrorKind string

const (
	KindInvalidCredential     ErrorKind = "invalid_credential"
	KindIdentityNotFound      ErrorKind = "identity_not_found"
	KindTokenExpired          ErrorKind = "token_expired"
	KindTokenInvalidSignature ErrorKind = "token_invalid_signature"
	KindTokenMissing          ErrorKind = "token_missing"
	KindUnauthenticated       ErrorKind = "unauthenticated"
	KindForbidden             ErrorKind = "forbidden"
	KindInternal              ErrorKind = "internal_error"
)

// TokenReason はトークン検証失敗の診断用理由コード。
// 呼び出し側への応答は理由によらず一律401となる。
type TokenReason string

const (
	ReasonBadSignature     TokenReason = "bad_signature"
	ReasonExpired          TokenReason = "expired"
	ReasonIssuerMismatch   TokenReason = "issuer_mismatch"
	ReasonAudienceMismatch TokenReason = "audience_mismatch"
	ReasonMalformed        TokenReason = "malformed"
)

// Error は認証サブシステムのエラー。
// errors.Is はKindが一致するかどうかで判定する。
type Error struct {
	Kind   ErrorKind
	Reason TokenReason
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += " (" + string(e.Reason) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is はtargetが同じKindの*Errorであればtrueを返す。
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// 比較用の番兵エラー。
var (
	ErrInvalidCredential     = &Error{Kind: KindInvalidCredential}
	ErrIdentityNotFound      = &Error{Kind: KindIdentityNotFound}
	ErrTokenExpired          = &Error{Kind: KindTokenExpired}
	ErrTokenInvalidSignature = &Error{Kind: KindTokenInvalidSignature}
	ErrTokenMissing          = &Error{Kind: KindTokenMissing}
	ErrUnauthenticated       = &Error{Kind: KindUnauthenticated}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrInternal              = &Error{Kind: KindInternal}
)

// internalError はストアやハッシュ処理の失敗をInternalErrorとして包む。
func internalError(op string, err error) *Error {
	return &Error{Kind: KindInternal, Err: fmt.Errorf("%s: %w", op, err)}
}

// tokenError はトークン検証失敗を理由コードに対応するKindで包む。
func tokenError(reason TokenReason, err error) *Error {
	kind := KindUnauthenticated
	switch reason {
	case ReasonExpired:
		kind = KindTokenExpired
	case ReasonBadSignature:
		kind = KindTokenInvalidSignature
	}
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// IsCredentialRejection は資格情報の拒否（未登録メールまたはパスワード不一致）かどうかを返す。
// 両者は応答上区別しない。
func IsCredentialRejection(err error) bool {
	return errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrIdentityNotFound)
}
