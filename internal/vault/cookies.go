package vault

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rustyclaw/core/internal/common/apperr"
)

// Cookie mirrors a browser cookie jar entry. Domain is always stored
// lowercased; Path defaults to "/".
type Cookie struct {
	Name     string     `json:"name"`
	Value    string     `json:"value"`
	Domain   string     `json:"domain"`
	Path     string     `json:"path"`
	Expires  *time.Time `json:"expires,omitempty"`
	Secure   bool       `json:"secure"`
	HTTPOnly bool       `json:"http_only"`
	SameSite string     `json:"same_site,omitempty"`
}

func (c Cookie) expired(at time.Time) bool {
	return c.Expires != nil && c.Expires.Before(at)
}

func loadCookies(c container) ([]Cookie, error) {
	raw, ok := c[browserStore]
	if !ok {
		return nil, nil
	}
	var cookies []Cookie
	if err := json.Unmarshal(raw, &cookies); err != nil {
		return nil, apperr.Wrap(apperr.KindCorruptEnvelope, "vault", "unmarshal cookie jar", err)
	}
	return cookies, nil
}

func saveCookies(c container, cookies []Cookie) error {
	raw, err := json.Marshal(cookies)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "vault", "marshal cookie jar", err)
	}
	c[browserStore] = raw
	return nil
}

// StoreCookiesFromResponse parses each Set-Cookie header, normalizes
// the domain, replaces any prior cookie sharing (name, path), and
// drops already-expired entries. The jar is re-sealed on every write;
// the lock spans the whole load-modify-save per DESIGN NOTES.
func (v *Vault) StoreCookiesFromResponse(domain string, setCookieHeaders []string) error {
	return v.withContainer(func(c container) (container, bool, error) {
		cookies, err := loadCookies(c)
		if err != nil {
			return nil, false, err
		}

		now := time.Now()
		for _, header := range setCookieHeaders {
			cookie, ok := parseSetCookie(header, domain)
			if !ok {
				continue
			}
			if cookie.expired(now) {
				continue
			}
			cookies = removeMatching(cookies, cookie.Name, cookie.Path)
			cookies = append(cookies, cookie)
		}

		// Purge any other expired cookies on this write rather than
		// running a background sweep; keeps the container bounded
		// without a timer goroutine.
		cookies = purgeExpired(cookies, now)

		if err := saveCookies(c, cookies); err != nil {
			return nil, false, err
		}
		return c, true, nil
	})
}

// CookieHeaderForRequest returns a "Name=Value; ..." header for every
// matching, non-expired cookie, or ("", false) if none match.
func (v *Vault) CookieHeaderForRequest(domain, path string, https bool) (string, bool) {
	var header string
	var found bool

	_ = v.withContainer(func(c container) (container, bool, error) {
		cookies, err := loadCookies(c)
		if err != nil {
			return nil, false, err
		}

		now := time.Now()
		var parts []string
		for _, ck := range cookies {
			if ck.expired(now) {
				continue
			}
			if !domainMatches(ck.Domain, domain) {
				continue
			}
			if !pathMatches(ck.Path, path) {
				continue
			}
			if ck.Secure && !https {
				continue
			}
			parts = append(parts, ck.Name+"="+ck.Value)
		}
		if len(parts) > 0 {
			header = strings.Join(parts, "; ")
			found = true
		}
		return c, false, nil
	})

	return header, found
}

// ExportCookies returns the jar in Netscape cookie-file format.
func (v *Vault) ExportCookies() (string, error) {
	var out strings.Builder
	err := v.withContainer(func(c container) (container, bool, error) {
		cookies, err := loadCookies(c)
		if err != nil {
			return nil, false, err
		}
		out.WriteString("# Netscape HTTP Cookie File\n")
		for _, ck := range cookies {
			includeSub := strings.HasPrefix(ck.Domain, ".")
			expires := int64(0)
			if ck.Expires != nil {
				expires = ck.Expires.Unix()
			}
			out.WriteString(strings.Join([]string{
				ck.Domain,
				strconv.FormatBool(includeSub),
				ck.Path,
				strconv.FormatBool(ck.Secure),
				strconv.FormatInt(expires, 10),
				ck.Name,
				ck.Value,
			}, "\t"))
			out.WriteString("\n")
		}
		return c, false, nil
	})
	return out.String(), err
}

// ImportCookies merges Netscape-format cookie text into the jar.
func (v *Vault) ImportCookies(text string) error {
	return v.withContainer(func(c container) (container, bool, error) {
		cookies, err := loadCookies(c)
		if err != nil {
			return nil, false, err
		}
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			fields := strings.Split(line, "\t")
			if len(fields) != 7 {
				continue
			}
			var expiresPtr *time.Time
			if ts, err := strconv.ParseInt(fields[4], 10, 64); err == nil && ts > 0 {
				t := time.Unix(ts, 0)
				expiresPtr = &t
			}
			cookie := Cookie{
				Domain:  strings.ToLower(fields[0]),
				Path:    fields[2],
				Secure:  fields[3] == "true",
				Expires: expiresPtr,
				Name:    fields[5],
				Value:   fields[6],
			}
			cookies = removeMatching(cookies, cookie.Name, cookie.Path)
			cookies = append(cookies, cookie)
		}
		cookies = purgeExpired(cookies, time.Now())
		if err := saveCookies(c, cookies); err != nil {
			return nil, false, err
		}
		return c, true, nil
	})
}

func removeMatching(cookies []Cookie, name, path string) []Cookie {
	out := cookies[:0]
	for _, ck := range cookies {
		if ck.Name == name && ck.Path == path {
			continue
		}
		out = append(out, ck)
	}
	return out
}

func purgeExpired(cookies []Cookie, at time.Time) []Cookie {
	out := cookies[:0]
	for _, ck := range cookies {
		if ck.expired(at) {
			continue
		}
		out = append(out, ck)
	}
	return out
}

// domainMatches applies the cookie-jar domain-matching rule: exact
// match, or cookie domain starts with "." and request domain equals
// or is a subdomain of the suffix.
func domainMatches(cookieDomain, requestDomain string) bool {
	cookieDomain = strings.ToLower(cookieDomain)
	requestDomain = strings.ToLower(requestDomain)
	if cookieDomain == requestDomain {
		return true
	}
	if strings.HasPrefix(cookieDomain, ".") {
		suffix := cookieDomain[1:]
		if requestDomain == suffix {
			return true
		}
		if strings.HasSuffix(requestDomain, "."+suffix) {
			return true
		}
	}
	return false
}

// pathMatches implements request-path-starts-with-cookie-path with
// trailing-slash tolerance.
func pathMatches(cookiePath, requestPath string) bool {
	if cookiePath == "" {
		cookiePath = "/"
	}
	if cookiePath == "/" {
		return true
	}
	if requestPath == cookiePath {
		return true
	}
	trimmed := strings.TrimSuffix(cookiePath, "/")
	return strings.HasPrefix(requestPath, trimmed+"/")
}

// parseSetCookie parses a single Set-Cookie header value into a
// Cookie bound to domain (used when the header omits Domain).
func parseSetCookie(header, defaultDomain string) (Cookie, bool) {
	parts := strings.Split(header, ";")
	if len(parts) == 0 {
		return Cookie{}, false
	}

	nameValue := strings.SplitN(strings.TrimSpace(parts[0]), "=", 2)
	if len(nameValue) != 2 {
		return Cookie{}, false
	}

	ck := Cookie{
		Name:   strings.TrimSpace(nameValue[0]),
		Value:  strings.TrimSpace(nameValue[1]),
		Domain: strings.ToLower(defaultDomain),
		Path:   "/",
	}

	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		kv := strings.SplitN(attr, "=", 2)
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		var value string
		if len(kv) == 2 {
			value = strings.TrimSpace(kv[1])
		}

		switch key {
		case "domain":
			ck.Domain = strings.ToLower(strings.TrimPrefix(value, "."))
			if strings.HasPrefix(strings.ToLower(value), ".") {
				ck.Domain = "." + ck.Domain
			}
		case "path":
			if value != "" {
				ck.Path = value
			}
		case "secure":
			ck.Secure = true
		case "httponly":
			ck.HTTPOnly = true
		case "samesite":
			ck.SameSite = value
		case "max-age":
			if seconds, err := strconv.Atoi(value); err == nil {
				t := time.Now().Add(time.Duration(seconds) * time.Second)
				ck.Expires = &t
			}
		case "expires":
			if t, err := time.Parse(time.RFC1123, value); err == nil {
				ck.Expires = &t
			} else if t, err := time.Parse(time.RFC1123Z, value); err == nil {
				ck.Expires = &t
			}
		}
	}

	return ck, true
}
