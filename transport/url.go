package transport

import "net/url"

// urlJoin resolves location (absolute or relative) against base.
func urlJoin(base, location string) (string, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	if loc.IsAbs() {
		return loc.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(loc).String(), nil
}
