package utils

import (
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"
)

// versionInName finds the last dotted version in an image file name, e.g.
// "geekmagic-fw-v1.4.2-rc1.bin" -> "1.4.2-rc1"
var versionInName = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z.]+)?)`)

// ImageVersion extracts the semantic version embedded in an image file name.
// It returns nil when the name carries no parseable version.
func ImageVersion(fileName string) *semver.Version {
	name := fileName
	if HasExtension(name, ".bin") {
		name = name[:len(name)-len(".bin")]
	}

	matches := versionInName.FindAllStringSubmatch(name, -1)
	if len(matches) == 0 {
		return nil
	}

	raw := matches[len(matches)-1][1]
	v, err := semver.NewVersion(raw)
	if err != nil {
		log.Debug().Str("file", fileName).Str("version", raw).Err(err).Msg("ignoring unparseable image version")
		return nil
	}
	return v
}

// IsDowngrade reports whether candidate is strictly older than current.
// Missing versions on either side never count as a downgrade.
func IsDowngrade(current, candidate string) bool {
	cur := ImageVersion(current)
	next := ImageVersion(candidate)
	if cur == nil || next == nil {
		return false
	}
	return next.LessThan(cur)
}

// IsPrerelease reports whether the version embedded in an image file name
// carries a pre-release tag, as in "geekmagic-1.5.0-rc1.bin"
func IsPrerelease(fileName string) bool {
	v := ImageVersion(fileName)
	return v != nil && v.Prerelease() != ""
}
