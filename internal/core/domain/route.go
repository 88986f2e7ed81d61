package domain

import "strings"

// RouteClass partitions request paths for the route guard.
type RouteClass string

const (
	RoutePublic    RouteClass = "public"
	RouteProtected RouteClass = "protected"
	RouteAsset     RouteClass = "asset"
)

// RouteClassifier is a static partition of request paths. Public paths match
// exactly; asset paths match by prefix. Everything else is protected.
type RouteClassifier struct {
	public        map[string]struct{}
	assetPrefixes []string
}

// NewRouteClassifier builds a classifier. Blank entries are ignored and a
// trailing slash on a public path is not significant.
func NewRouteClassifier(publicPaths, assetPrefixes []string) *RouteClassifier {
	rc := &RouteClassifier{public: make(map[string]struct{}, len(publicPaths))}
	for _, p := range publicPaths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		rc.public[normalizePath(p)] = struct{}{}
	}
	for _, p := range assetPrefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		rc.assetPrefixes = append(rc.assetPrefixes, p)
	}
	return rc
}

// Classify returns the class of path.
func (rc *RouteClassifier) Classify(path string) RouteClass {
	if _, ok := rc.public[normalizePath(path)]; ok {
		return RoutePublic
	}
	for _, prefix := range rc.assetPrefixes {
		if strings.HasPrefix(path, prefix) {
			return RouteAsset
		}
	}
	return RouteProtected
}

// IsPublic reports whether path is public.
func (rc *RouteClassifier) IsPublic(path string) bool {
	return rc.Classify(path) != RouteProtected
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			return "/"
		}
	}
	return p
}
