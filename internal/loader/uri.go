package loader

import (
	"net/url"
	"path"
	"strings"
)

// Supported URI schemes.
const (
	SchemeFile  = "file"
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeS3    = "s3"
)

// ParseScheme extracts the lower-cased scheme from a URI.
// Returns "" for bare local paths.
func ParseScheme(uri string) string {
	i := strings.Index(uri, "://")
	if i <= 0 {
		return ""
	}
	scheme := uri[:i]
	for _, r := range scheme {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return ""
		}
	}
	return strings.ToLower(scheme)
}

// SplitFragment splits uri at the first '#'. The fragment is returned
// without the '#' and is empty when absent.
func SplitFragment(uri string) (resource, fragment string) {
	if i := strings.IndexByte(uri, '#'); i >= 0 {
		return uri[:i], uri[i+1:]
	}
	return uri, ""
}

// BaseOf returns the prefix of a resource URI up to (not including) its
// last '/'. A URI with no path separator has an empty base, so relative
// references resolve against the working directory.
func BaseOf(resource string) string {
	i := strings.LastIndexByte(resource, '/')
	if i < 0 {
		return ""
	}
	// Keep "scheme://host" intact for URIs without a path.
	if s := strings.Index(resource, "://"); s >= 0 && i < s+3 {
		return resource
	}
	return resource[:i]
}

// Resolve joins a reference against a base URI. The base always denotes a
// directory; "." and ".." segments in ref are honored and a '#fragment' on
// ref is preserved. References that carry their own scheme or are absolute
// local paths ignore the base.
func Resolve(base, ref string) string {
	refPath, fragment := SplitFragment(ref)
	suffix := ""
	if strings.Contains(ref, "#") {
		suffix = "#" + fragment
	}
	if ParseScheme(refPath) != "" {
		return refPath + suffix
	}

	if ParseScheme(base) != "" {
		baseURL, err := url.Parse(ensureTrailingSlash(base))
		if err == nil {
			refURL, err := url.Parse(refPath)
			if err == nil {
				return baseURL.ResolveReference(refURL).String() + suffix
			}
		}
		// Unparseable URIs fall back to plain path arithmetic below.
	}

	if refPath == "" {
		return base + suffix
	}
	if strings.HasPrefix(refPath, "/") || base == "" {
		return path.Clean(refPath) + suffix
	}
	return path.Join(base, refPath) + suffix
}

// normalizeResource removes "." and ".." segments from a resource URI the
// way Resolve does, so a resource reached by different spellings shares one
// cache entry.
func normalizeResource(resource string) string {
	if resource == "" {
		return resource
	}
	if ParseScheme(resource) != "" {
		u, err := url.Parse(resource)
		if err != nil {
			return resource
		}
		return u.ResolveReference(&url.URL{}).String()
	}
	return path.Clean(resource)
}

func ensureTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// fragmentSegments turns "/a/b" or "a/b" into ["a", "b"].
func fragmentSegments(fragment string) []string {
	fragment = strings.TrimPrefix(fragment, "/")
	return strings.Split(fragment, "/")
}
