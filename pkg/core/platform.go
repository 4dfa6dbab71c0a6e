package core

// Platform identifies a publishing target. The set is closed: adding a
// platform means adding a constant here and an adapter implementing it.
type Platform string

const (
	PlatformLinkedIn  Platform = "linkedin"
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
	PlatformDiscord   Platform = "discord"
)

// AllPlatforms lists every supported platform.
func AllPlatforms() []Platform {
	return []Platform{PlatformLinkedIn, PlatformInstagram, PlatformTwitter, PlatformDiscord}
}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformLinkedIn, PlatformInstagram, PlatformTwitter, PlatformDiscord:
		return true
	default:
		return false
	}
}

func (p Platform) String() string {
	return string(p)
}
