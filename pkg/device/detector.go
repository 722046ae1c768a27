// Package device classifies the capture platform and picks the detection
// strategy for a session.
package device

import (
	"log/slog"
	"regexp"
	"runtime"
	"strings"
)

// Strategy names the detection pipeline a profile runs on.
type Strategy string

const (
	StrategyRawPCM Strategy = "raw_pcm"
	StrategyNative Strategy = "native"
)

type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformMacOS   Platform = "macos"
	PlatformWindows Platform = "windows"
	PlatformLinux   Platform = "linux"
	PlatformUnknown Platform = "unknown"
)

type Browser string

const (
	BrowserChrome  Browser = "chrome"
	BrowserEdge    Browser = "edge"
	BrowserSafari  Browser = "safari"
	BrowserFirefox Browser = "firefox"
	BrowserOpera   Browser = "opera"
	BrowserNone    Browser = "none"
	BrowserUnknown Browser = "unknown"
)

// Signals are the raw inputs the detector classifies.
type Signals struct {
	UserAgent string
	// Platform is a client-reported platform hint or a GOOS value.
	Platform string
	// NativeSpeechAPI is the client's own report; nil means infer from the browser.
	NativeSpeechAPI *bool
	MaxTouchPoints  int
	InputDeviceName string
	// NativeEngineConfigured is false when no native engine provider is available.
	NativeEngineConfigured bool
}

// Profile is computed once per session.
type Profile struct {
	Platform           Platform
	Browser            Browser
	Mobile             bool
	HasNativeSpeechAPI bool
	HasEchoRisk        bool
	Strategy           Strategy
}

func (p Profile) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("platform", string(p.Platform)),
		slog.String("browser", string(p.Browser)),
		slog.Bool("mobile", p.Mobile),
		slog.Bool("native_speech", p.HasNativeSpeechAPI),
		slog.Bool("echo_risk", p.HasEchoRisk),
		slog.String("strategy", string(p.Strategy)),
	)
}

var (
	mobileRe    = regexp.MustCompile(`(?i)android|iphone|ipad|ipod|mobi|silk|kindle|blackberry|opera mini|iemobile`)
	edgeRe      = regexp.MustCompile(`(?i)edg(e|a|ios)?/`)
	operaRe     = regexp.MustCompile(`(?i)opr/|opera`)
	chromeRe    = regexp.MustCompile(`(?i)chrome/|crios/|chromium/`)
	firefoxRe   = regexp.MustCompile(`(?i)firefox/|fxios/`)
	safariRe    = regexp.MustCompile(`(?i)safari/`)
	echoRiskRe  = regexp.MustCompile(`(?i)speakerphone|conference|built-?in|macbook|laptop`)
	bluetoothRe = regexp.MustCompile(`(?i)airpods|bluetooth|hands-?free|\bbt\b|buds|jabra|bose|beats`)
)

// Detect classifies signals into a profile. Mobile platforms and platforms
// without a native recognition API always run the raw PCM pipeline.
func Detect(s Signals) Profile {
	p := Profile{
		Platform: detectPlatform(s),
		Browser:  detectBrowser(s.UserAgent),
	}
	p.Mobile = p.Platform == PlatformAndroid || p.Platform == PlatformIOS || mobileRe.MatchString(s.UserAgent)

	if s.NativeSpeechAPI != nil {
		p.HasNativeSpeechAPI = *s.NativeSpeechAPI
	} else {
		p.HasNativeSpeechAPI = browserHasNativeSpeech(p.Browser)
	}
	if !s.NativeEngineConfigured {
		p.HasNativeSpeechAPI = false
	}

	p.HasEchoRisk = p.Mobile || p.Browser == BrowserSafari || echoRiskRe.MatchString(s.InputDeviceName) ||
		bluetoothRe.MatchString(s.InputDeviceName)

	p.Strategy = StrategyRawPCM
	if !p.Mobile && p.HasNativeSpeechAPI {
		p.Strategy = StrategyNative
	}
	return p
}

// LocalSignals builds signals for an in-process microphone.
func LocalSignals(deviceName string, nativeConfigured bool) Signals {
	native := nativeConfigured
	return Signals{
		Platform:               runtime.GOOS,
		NativeSpeechAPI:        &native,
		InputDeviceName:        deviceName,
		NativeEngineConfigured: nativeConfigured,
	}
}

func detectPlatform(s Signals) Platform {
	ua := strings.ToLower(s.UserAgent)
	switch {
	case strings.Contains(ua, "android"):
		return PlatformAndroid
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ipod"):
		return PlatformIOS
	case strings.Contains(ua, "macintosh") && s.MaxTouchPoints > 1:
		// iPadOS reports a desktop Safari user agent.
		return PlatformIOS
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "mac os x"):
		return PlatformMacOS
	case strings.Contains(ua, "windows"):
		return PlatformWindows
	case strings.Contains(ua, "linux"), strings.Contains(ua, "x11"):
		return PlatformLinux
	}
	switch strings.ToLower(strings.TrimSpace(s.Platform)) {
	case "android":
		return PlatformAndroid
	case "ios":
		return PlatformIOS
	case "darwin", "macos", "macintel":
		return PlatformMacOS
	case "windows", "win32":
		return PlatformWindows
	case "linux", "freebsd", "openbsd":
		return PlatformLinux
	}
	return PlatformUnknown
}

func detectBrowser(ua string) Browser {
	if strings.TrimSpace(ua) == "" {
		return BrowserNone
	}
	switch {
	case edgeRe.MatchString(ua):
		return BrowserEdge
	case operaRe.MatchString(ua):
		return BrowserOpera
	case firefoxRe.MatchString(ua):
		return BrowserFirefox
	case chromeRe.MatchString(ua):
		return BrowserChrome
	case safariRe.MatchString(ua):
		return BrowserSafari
	}
	return BrowserUnknown
}

func browserHasNativeSpeech(b Browser) bool {
	switch b {
	case BrowserChrome, BrowserEdge, BrowserSafari, BrowserNone:
		return true
	default:
		return false
	}
}
