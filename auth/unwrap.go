package auth

import (
	"fmt"

	"github.com/jrsteele09/mcp-oauth-server/oauthmodel"
	"github.com/rs/zerolog/log"
)

var (
	codeRefKeys  = []string{"authorizationCode", "code", "authorization_code"}
	tokenRefKeys = []string{"refreshToken", "refresh_token", "token"}
)

// UnwrapCodeRef accepts the shapes integrators send for an authorization code: a bare string,
// a decoded JSON object, or one of the model's own views.
func UnwrapCodeRef(v any) (oauthmodel.CodeRef, error) {
	switch ref := v.(type) {
	case string:
		return oauthmodel.CodeRef{Code: ref}, nil
	case oauthmodel.CodeRef:
		return ref, nil
	case *oauthmodel.CodeRef:
		if ref != nil {
			return *ref, nil
		}
	case *oauthmodel.AuthorizationCode:
		if ref != nil {
			return oauthmodel.CodeRef{Code: ref.AuthorizationCode}, nil
		}
	case oauthmodel.AuthorizationCode:
		return oauthmodel.CodeRef{Code: ref.AuthorizationCode}, nil
	case map[string]any:
		if s, ok := firstString(ref, codeRefKeys); ok {
			return oauthmodel.CodeRef{Code: s}, nil
		}
	case map[string]string:
		for _, k := range codeRefKeys {
			if s, ok := ref[k]; ok && s != "" {
				return oauthmodel.CodeRef{Code: s}, nil
			}
		}
	}
	return oauthmodel.CodeRef{}, unsupportedRef(v)
}

// UnwrapTokenRef is UnwrapCodeRef for refresh tokens.
func UnwrapTokenRef(v any) (oauthmodel.TokenRef, error) {
	switch ref := v.(type) {
	case string:
		return oauthmodel.TokenRef{RefreshToken: ref}, nil
	case oauthmodel.TokenRef:
		return ref, nil
	case *oauthmodel.TokenRef:
		if ref != nil {
			return *ref, nil
		}
	case *oauthmodel.Token:
		if ref != nil {
			return oauthmodel.TokenRef{RefreshToken: ref.RefreshToken}, nil
		}
	case oauthmodel.Token:
		return oauthmodel.TokenRef{RefreshToken: ref.RefreshToken}, nil
	case map[string]any:
		if s, ok := firstString(ref, tokenRefKeys); ok {
			return oauthmodel.TokenRef{RefreshToken: s}, nil
		}
	case map[string]string:
		for _, k := range tokenRefKeys {
			if s, ok := ref[k]; ok && s != "" {
				return oauthmodel.TokenRef{RefreshToken: s}, nil
			}
		}
	}
	return oauthmodel.TokenRef{}, unsupportedRef(v)
}

func firstString(m map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func unsupportedRef(v any) error {
	log.Warn().Str("type", fmt.Sprintf("%T", v)).Msg("unsupported token reference")
	return fmt.Errorf("%w: %T", UnsupportedRefErr, v)
}
