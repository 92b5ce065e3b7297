package authflow

import (
	"errors"
	"net/url"
)

// DefaultAuthPath is the path of the auth flow's page.
const DefaultAuthPath = "/auth"

// Gate guards a page on the presence of a session token in s. If there's
// no token, it returns false and the auth page URL that redirects back
// to self. The token isn't validated with the server: presence alone
// grants access.
func Gate(s Storage, authPath, self string) (string, bool, error) {
	tok, err := s.Get(KeyToken)
	if err != nil && !errors.Is(err, ErrNoValue) {
		return "", false, err
	}
	if tok != "" {
		return "", true, nil
	}

	if authPath == "" {
		authPath = DefaultAuthPath
	}
	return authPath + "?" + url.Values{"redirect": {self}}.Encode(), false, nil
}
