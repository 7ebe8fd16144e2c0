package registry

import (
	"strings"
	"time"
)

func TruncateDigest(digest string, length int) string {
	if len(digest) <= length {
		return digest
	}
	return digest[:length]
}

func HasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func RemoveTagFromVersions(versions *[]VersionInfo, tag string) {
	for i := range *versions {
		(*versions)[i].Tags = RemoveTag((*versions)[i].Tags, tag)
	}
}

func AddTagToVersion(versions *[]VersionInfo, shortDigest, tag string) {
	for i := range *versions {
		if (*versions)[i].Hash == shortDigest {
			(*versions)[i].Tags = append((*versions)[i].Tags, tag)
			break
		}
	}
}

func RemoveTag(tags []string, tagToRemove string) []string {
	result := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != tagToRemove {
			result = append(result, t)
		}
	}
	return result
}

func CreateVersionInfo(shortDigest string, image PushRequest, tag string) VersionInfo {
	tags := make([]string, 0)
	if tag != "" {
		tags = append(tags, tag)
	}

	return VersionInfo{
		Hash:       shortDigest,
		FullDigest: image.Digest,
		Layers:     image.Layers,
		Config:     image.Config,
		Size:       image.Size,
		CreatedAt:  time.Now(),
		Tags:       tags,
	}
}

// ParseReference splits "namespace/name:reference" into its parts. The
// namespace defaults to "default" and the reference to "latest".
func ParseReference(ref string) (namespace, name, reference string, err error) {
	namespace = "default"
	reference = "latest"

	rest := ref
	if idx := strings.LastIndex(rest, ":"); idx >= 0 {
		reference = rest[idx+1:]
		rest = rest[:idx]
	}
	if idx := strings.Index(rest, "/"); idx >= 0 {
		namespace = rest[:idx]
		rest = rest[idx+1:]
	}
	name = rest

	if name == "" || reference == "" || strings.Contains(name, "/") {
		return "", "", "", ErrInvalidReference
	}
	return namespace, name, reference, nil
}
