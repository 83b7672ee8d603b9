// Package identity derives canonical instance identity from a user
// supplied id: empty input gets a fresh random UUID, an already-canonical
// UUID string is passed through verbatim, and anything else is turned
// into a deterministic v5 UUID so that loading "the same" named thing
// twice always resolves to the same instance.
package identity

import (
	"strings"

	"github.com/google/uuid"

	"dlite/errors"
)

// Version tags returned by GetUUID, matching the RFC 4122 version
// numbers except for the "already canonical" case, which has no
// version of its own and is reported as 0.
const (
	VersionVerbatim = 0 // id was already a canonical UUID string
	VersionV4       = 4 // id was empty; a random UUID was generated
	VersionV5       = 5 // id was a name; a deterministic UUID was derived
)

// canonicalLen is the length of the canonical hyphenated form,
// 8-4-4-4-12.
const canonicalLen = 36

// GetUUID derives a canonical, lowercase UUID string for id and reports
// which derivation rule applied:
//
//   - id == ""                       -> random v4, returns VersionV4
//   - id is already a canonical UUID -> copied verbatim, returns VersionVerbatim
//   - otherwise                      -> v5 SHA-1 over the DNS namespace, returns VersionV5
//
// On failure it returns ("", -1, err); failure can only come from the
// random-number source.
func GetUUID(id string) (string, int, error) {
	if id == "" {
		u, err := uuid.NewRandom()
		if err != nil {
			return "", -1, errors.Diagnose(errors.ErrIdentity, "failed to generate random uuid")
		}
		return strings.ToLower(u.String()), VersionV4, nil
	}

	if IsCanonical(id) {
		return strings.ToLower(id), VersionVerbatim, nil
	}

	u := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(id))
	return strings.ToLower(u.String()), VersionV5, nil
}

// MustCanonical returns GetUUID's canonical uuid for id and panics if
// GetUUID fails, which can only happen for an empty id when the random
// source fails. NewMetaEntity uses it to derive the meta-entity's uuid.
func MustCanonical(id string) string {
	canonical, _, err := GetUUID(id)
	if err != nil {
		panic(err)
	}
	return canonical
}

// IsCanonical reports whether s is already a canonical UUID string:
// 36 characters in the hyphenated 8-4-4-4-12 hex form. uuid.Parse alone
// also accepts urn: prefixes, braces and the bare 32-hex form, none of
// which count as canonical here.
func IsCanonical(s string) bool {
	if len(s) != canonicalLen {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// JoinURI builds a metadata uri of the canonical form
// "namespace/version/name".
func JoinURI(name, version, namespace string) string {
	return namespace + "/" + version + "/" + name
}

// SplitURI splits a metadata uri into (name, version, namespace),
// using the last and second-to-last '/' as separators. It fails if the
// uri has fewer than two '/' characters.
func SplitURI(uri string) (name, version, namespace string, err error) {
	lastSlash := strings.LastIndex(uri, "/")
	if lastSlash < 0 {
		return "", "", "", errors.Diagnose(errors.ErrSchema, "uri %q has no '/' separators", uri)
	}
	rest := uri[:lastSlash]
	secondSlash := strings.LastIndex(rest, "/")
	if secondSlash < 0 {
		return "", "", "", errors.Diagnose(errors.ErrSchema, "uri %q has only one '/' separator", uri)
	}
	namespace = uri[:secondSlash]
	version = uri[secondSlash+1 : lastSlash]
	name = uri[lastSlash+1:]
	return name, version, namespace, nil
}
