package extract

import (
	"net/url"
	"strings"
)

// Platform is an applicant tracking system whose pages get extra noise removal.
type Platform string

const (
	PlatformGreenhouse Platform = "greenhouse"
	PlatformLever      Platform = "lever"
	PlatformWorkday    Platform = "workday"
	PlatformUnknown    Platform = "unknown"
)

// DetectPlatform identifies the applicant tracking system serving pageURL.
func DetectPlatform(pageURL string) Platform {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return PlatformUnknown
	}

	host := strings.ToLower(parsed.Hostname())
	switch {
	case strings.HasSuffix(host, "greenhouse.io"):
		return PlatformGreenhouse
	case strings.HasSuffix(host, "lever.co"):
		return PlatformLever
	case strings.HasSuffix(host, "workday.com"), strings.HasSuffix(host, "myworkdayjobs.com"):
		return PlatformWorkday
	default:
		return PlatformUnknown
	}
}

// platformNoise returns the selector of EEO and apply widgets for the platform of pageURL.
func platformNoise(pageURL string) string {
	switch DetectPlatform(pageURL) {
	case PlatformGreenhouse:
		return "#usa_self_id_section, .voluntary-self-id, .voluntary-self-id-wrapper, .post-apply"
	case PlatformLever:
		return ".apply-section, .posting-apply, .lever-application-form"
	case PlatformWorkday:
		return "[data-automation-id='applyButton'], .WDAF"
	default:
		return ""
	}
}
