package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/valyala/fastjson"

	"github.com/entratools/aad-token-validator/core"
)

// Decode splits a compact JWS into its header, claims and signature.
//
// Surrounding whitespace and a "Bearer " prefix are ignored. Decode performs
// no signature or claim checks and no I/O. Every failure is a
// *core.ValidationError matching core.ErrMalformedToken.
func Decode(raw string) (*Token, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}

	if err := validateTokenFormat(raw); err != nil {
		return nil, malformed(err)
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, malformed(fmt.Errorf("token has %d segments, want 3", len(parts)))
	}

	names := [3]string{"header", "payload", "signature"}
	var decoded [3][]byte
	for i, part := range parts {
		if part == "" {
			return nil, malformed(fmt.Errorf("%s segment is empty", names[i]))
		}
		b, err := decodeSegment(part)
		if err != nil {
			return nil, malformed(fmt.Errorf("%s segment: %w", names[i], err))
		}
		decoded[i] = b
	}

	headerObj, err := parseObject(decoded[0])
	if err != nil {
		return nil, malformed(fmt.Errorf("header: %w", err))
	}
	header, err := newHeader(headerObj)
	if err != nil {
		return nil, malformed(fmt.Errorf("header: %w", err))
	}

	claimsObj, err := parseObject(decoded[1])
	if err != nil {
		return nil, malformed(fmt.Errorf("payload: %w", err))
	}

	return &Token{
		Header:       header,
		Claims:       &Claims{Object: claimsObj},
		raw:          raw,
		signingInput: []byte(raw[:len(parts[0])+1+len(parts[1])]),
		signature:    decoded[2],
	}, nil
}

func malformed(err error) error {
	return core.NewValidationError(core.ErrorCodeTokenMalformed, "malformed token", err)
}

// decodeSegment decodes unpadded base64url, tolerating trailing padding.
// Unused trailing bits must be zero so that every segment has exactly one
// encoding.
func decodeSegment(seg string) ([]byte, error) {
	return base64.RawURLEncoding.Strict().DecodeString(strings.TrimRight(seg, "="))
}

func newHeader(fields *Object) (Header, error) {
	h := Header{Fields: fields}

	alg, ok := fields.Get("alg")
	if !ok {
		return Header{}, errors.New(`missing "alg"`)
	}
	if h.Alg, ok = alg.Str(); !ok {
		return Header{}, fmt.Errorf(`"alg" is a %s, not a string`, alg.Kind())
	}

	if kid, ok := fields.Get("kid"); ok {
		if h.Kid, ok = kid.Str(); !ok {
			return Header{}, fmt.Errorf(`"kid" is a %s, not a string`, kid.Kind())
		}
		h.HasKid = true
	}

	if typ, ok := fields.Get("typ"); ok {
		if h.Typ, ok = typ.Str(); !ok {
			return Header{}, fmt.Errorf(`"typ" is a %s, not a string`, typ.Kind())
		}
	}

	return h, nil
}

// parseObject decodes b, which must be a UTF-8 JSON object, preserving member
// order.
func parseObject(b []byte) (*Object, error) {
	if !utf8.Valid(b) {
		return nil, errors.New("not valid UTF-8")
	}

	var p fastjson.Parser
	v, err := p.ParseBytes(b)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, fmt.Errorf("JSON %s is not an object", v.Type())
	}

	out, err := convert(v)
	if err != nil {
		return nil, err
	}
	return out.obj, nil
}

func convert(v *fastjson.Value) (Value, error) {
	switch v.Type() {
	case fastjson.TypeNull:
		return Value{kind: KindNull}, nil
	case fastjson.TypeTrue:
		return Value{kind: KindBool, b: true}, nil
	case fastjson.TypeFalse:
		return Value{kind: KindBool}, nil
	case fastjson.TypeNumber:
		return Value{kind: KindNumber, str: v.String()}, nil
	case fastjson.TypeString:
		s, err := v.StringBytes()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindString, str: string(s)}, nil
	case fastjson.TypeArray:
		arr, err := v.Array()
		if err != nil {
			return Value{}, err
		}
		out := make([]Value, 0, len(arr))
		for _, el := range arr {
			cv, err := convert(el)
			if err != nil {
				return Value{}, err
			}
			out = append(out, cv)
		}
		return Value{kind: KindArray, arr: out}, nil
	case fastjson.TypeObject:
		o, err := v.Object()
		if err != nil {
			return Value{}, err
		}
		obj := newObject(o.Len())
		var visitErr error
		o.Visit(func(key []byte, el *fastjson.Value) {
			if visitErr != nil {
				return
			}
			cv, err := convert(el)
			if err != nil {
				visitErr = err
				return
			}
			obj.set(string(key), cv)
		})
		if visitErr != nil {
			return Value{}, visitErr
		}
		return Value{kind: KindObject, obj: obj}, nil
	default:
		return Value{}, fmt.Errorf("unsupported JSON type %s", v.Type())
	}
}
