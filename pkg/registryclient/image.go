// Package registryclient wraps docker-image reference parsing and the
// Registry's label-filter API. Image reference parsing is grounded on
// the teacher's api-types/plans.Image.Parse, which leans on
// go-containerregistry's pkg/name to split a "repo[:tag]" string into
// its repository and tag; this package generalizes that into the
// allow-list check spec §3 requires ("every catalog item's docker image
// must belong to an allow-listed registry/organization set").
package registryclient

import (
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
)

// Image is a parsed "repository:tag" reference.
type Image struct {
	Repository string
	Tag        string
}

// ParseImage parses s the same way the teacher's Image.Parse does: via
// name.NewTag with no implicit default registry, so a bare "org/name:tag"
// does not get silently rewritten to "index.docker.io/org/name:tag" —
// PAPI's allow-list matches on the repository string as submitted.
func ParseImage(s string) (Image, error) {
	ref, err := name.NewTag(s, name.WithDefaultRegistry(""))
	if err != nil {
		return Image{}, fmt.Errorf("registryclient: parse image %q: %w", s, err)
	}
	return Image{Repository: ref.Repository.Name(), Tag: ref.TagStr()}, nil
}

func (i Image) String() string {
	if i.Tag == "" {
		return i.Repository
	}
	return fmt.Sprintf("%s:%s", i.Repository, i.Tag)
}

// AllowList is a closed set of registry/organization prefixes a docker
// image's repository must start with (spec §3's catalog invariant, and
// §4.5 step 3's "enforce docker-image allow-list when the user may
// override the image").
type AllowList []string

// Allows reports whether repository (as returned by ParseImage) matches
// one of the allow-listed prefixes. A prefix matches at a path boundary:
// "ai4os" matches "ai4os/module-x" but not "ai4os-other/module-x".
func (a AllowList) Allows(repository string) bool {
	for _, prefix := range a {
		prefix = strings.TrimSuffix(prefix, "/")
		if repository == prefix || strings.HasPrefix(repository, prefix+"/") {
			return true
		}
	}
	return false
}
