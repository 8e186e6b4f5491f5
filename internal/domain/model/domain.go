package model

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// SpecificationKind identifies how a DomainSpecification is tested.
type SpecificationKind string

const (
	SpecificationScheme   SpecificationKind = "scheme"
	SpecificationHostname SpecificationKind = "hostname"
)

// DomainSpecification restricts the URLs a domain's credentials are offered
// for. For SpecificationScheme, Includes is a comma-separated scheme list.
// For SpecificationHostname, Includes and Excludes are comma-separated glob
// patterns; an empty Includes matches every host not excluded.
type DomainSpecification struct {
	Kind     SpecificationKind
	Includes string
	Excludes string
}

// SchemeSpecification requires the target URL to use one of schemes.
func SchemeSpecification(schemes ...string) DomainSpecification {
	return DomainSpecification{Kind: SpecificationScheme, Includes: strings.Join(schemes, ",")}
}

// HostnameSpecification requires the target host to match includes and not
// match excludes.
func HostnameSpecification(includes, excludes string) DomainSpecification {
	return DomainSpecification{Kind: SpecificationHostname, Includes: includes, Excludes: excludes}
}

// Matches tests the specification against target.
func (s DomainSpecification) Matches(target *url.URL) bool {
	if target == nil {
		return false
	}
	switch s.Kind {
	case SpecificationScheme:
		for _, scheme := range splitList(s.Includes) {
			if strings.EqualFold(scheme, target.Scheme) {
				return true
			}
		}
		return false
	case SpecificationHostname:
		host := strings.ToLower(target.Hostname())
		if host == "" {
			return false
		}
		for _, pattern := range splitList(s.Excludes) {
			if globMatch(pattern, host) {
				return false
			}
		}
		includes := splitList(s.Includes)
		if len(includes) == 0 {
			return true
		}
		for _, pattern := range includes {
			if globMatch(pattern, host) {
				return true
			}
		}
		return false
	}
	return false
}

// Domain groups credentials and restricts which target URLs they are offered
// for. ID zero with no specifications is the global domain.
type Domain struct {
	ID             int64
	Owner          string
	Name           string
	Description    string
	AutoGenerated  bool
	Specifications []DomainSpecification
	CreatedAt      time.Time
}

// IsGlobal reports whether d is the unrestricted global domain.
func (d Domain) IsGlobal() bool {
	return d.ID == 0 && d.Name == ""
}

// Matches is true when every specification matches target.
func (d Domain) Matches(target *url.URL) bool {
	for _, spec := range d.Specifications {
		if !spec.Matches(target) {
			return false
		}
	}
	return true
}

// AutoDomainDescription labels domains created for issued tokens.
const AutoDomainDescription = "GitLab domain (autogenerated)"

// DomainForServer builds the domain a token minted for server is stored in:
// named after the hostname, requiring the exact scheme and hostname.
func DomainForServer(server *url.URL) Domain {
	host := server.Hostname()
	return Domain{
		Owner:         SystemStore,
		Name:          host,
		Description:   AutoDomainDescription,
		AutoGenerated: true,
		Specifications: []DomainSpecification{
			SchemeSpecification(server.Scheme),
			HostnameSpecification(host, ""),
		},
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// globMatch matches host against a case-insensitive shell pattern. Hostnames
// never contain '/', so path.Match's '*' spans dotted labels.
func globMatch(pattern, host string) bool {
	ok, err := path.Match(strings.ToLower(pattern), host)
	return err == nil && ok
}
