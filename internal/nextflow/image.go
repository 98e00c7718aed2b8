package nextflow

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"
)

// DefaultTag is used when an image reference carries no tag.
const DefaultTag = "latest"

const dockerHub = "docker.io"

// strippedRegistries are public registries whose host is dropped from the
// private repository name when no namespace is configured for them.
var strippedRegistries = []string{dockerHub, "quay.io"}

// Image is a parsed container image reference. Docker Hub references are
// normalized, so "ubuntu", "docker.io/library/ubuntu" and
// "index.docker.io/library/ubuntu" parse to the same Image.
type Image struct {
	Registry   string // "docker.io" for Docker Hub
	Repository string // full path, "library/ubuntu" for official images
	Familiar   string // short Docker Hub form, "ubuntu"
	Tag        string
	Digest     string
}

// ParseImage splits an image reference into registry, repository, tag and
// digest. A missing tag defaults to "latest" unless a digest is present.
func ParseImage(uri string) (Image, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Image{}, fmt.Errorf("parse image: empty reference")
	}
	named, err := reference.ParseNormalizedNamed(uri)
	if err != nil {
		return Image{}, fmt.Errorf("parse image %q: %w", uri, err)
	}
	img := Image{
		Registry:   reference.Domain(named),
		Repository: reference.Path(named),
		Familiar:   reference.FamiliarName(named),
	}
	if tagged, ok := named.(reference.Tagged); ok {
		img.Tag = tagged.Tag()
	}
	if digested, ok := named.(reference.Digested); ok {
		img.Digest = digested.Digest().String()
	}
	if img.Tag == "" && img.Digest == "" {
		img.Tag = DefaultTag
	}
	return img, nil
}

// Ref is the reference suffix: ":tag" or "@digest".
func (i Image) Ref() string {
	if i.Digest != "" {
		return "@" + i.Digest
	}
	return ":" + i.Tag
}

// name is the repository path used under a stripped host or a namespace.
func (i Image) name() string {
	if i.Registry == dockerHub {
		return i.Familiar
	}
	return i.Repository
}

// PrivateRepoName is the private registry repository that mirrors img.
// Registries listed in namespaces are replaced by their namespace prefix;
// docker.io and quay.io are otherwise dropped; any other registry host is
// kept as the leading path component.
func PrivateRepoName(img Image, namespaces map[string]string) string {
	repo := img.name()
	if ns, ok := namespaces[img.Registry]; ok {
		if ns == "" {
			return repo
		}
		return ns + "/" + repo
	}
	for _, r := range strippedRegistries {
		if img.Registry == r {
			return repo
		}
	}
	return strings.ToLower(img.Registry) + "/" + repo
}

// RegistryHost is the private registry host for an account and region.
func RegistryHost(account, region string) string {
	return fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com", account, region)
}

// PrivateImageURI is the full private image reference that mirrors img.
func PrivateImageURI(img Image, account, region string, namespaces map[string]string) string {
	return RegistryHost(account, region) + "/" + PrivateRepoName(img, namespaces) + img.Ref()
}
