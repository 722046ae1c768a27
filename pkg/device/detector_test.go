package device

import "testing"

const (
	uaChromeMac  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	uaFirefoxWin = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0"
	uaSafariMac  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15"
	uaIPhone     = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
	uaAndroid    = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36"
	uaEdgeWin    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		name     string
		signals  Signals
		platform Platform
		browser  Browser
		mobile   bool
		native   bool
		echoRisk bool
		strategy Strategy
	}{
		{"chrome desktop", Signals{UserAgent: uaChromeMac, NativeEngineConfigured: true}, PlatformMacOS, BrowserChrome, false, true, false, StrategyNative},
		{"edge desktop", Signals{UserAgent: uaEdgeWin, NativeEngineConfigured: true}, PlatformWindows, BrowserEdge, false, true, false, StrategyNative},
		{"firefox has no native api", Signals{UserAgent: uaFirefoxWin, NativeEngineConfigured: true}, PlatformWindows, BrowserFirefox, false, false, false, StrategyRawPCM},
		{"safari desktop echo risk", Signals{UserAgent: uaSafariMac, NativeEngineConfigured: true}, PlatformMacOS, BrowserSafari, false, true, true, StrategyNative},
		{"iphone forced raw", Signals{UserAgent: uaIPhone, NativeEngineConfigured: true}, PlatformIOS, BrowserSafari, true, true, true, StrategyRawPCM},
		{"android forced raw", Signals{UserAgent: uaAndroid, NativeEngineConfigured: true}, PlatformAndroid, BrowserChrome, true, true, true, StrategyRawPCM},
		{"ipad desktop ua", Signals{UserAgent: uaSafariMac, MaxTouchPoints: 5, NativeEngineConfigured: true}, PlatformIOS, BrowserSafari, true, true, true, StrategyRawPCM},
		{"no engine configured", Signals{UserAgent: uaChromeMac}, PlatformMacOS, BrowserChrome, false, false, false, StrategyRawPCM},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Detect(tc.signals)
			if p.Platform != tc.platform || p.Browser != tc.browser {
				t.Fatalf("expected %s/%s, got %s/%s", tc.platform, tc.browser, p.Platform, p.Browser)
			}
			if p.Mobile != tc.mobile || p.HasNativeSpeechAPI != tc.native || p.HasEchoRisk != tc.echoRisk {
				t.Fatalf("unexpected flags %+v", p)
			}
			if p.Strategy != tc.strategy {
				t.Fatalf("expected strategy %s, got %s", tc.strategy, p.Strategy)
			}
		})
	}
}

func TestDetectClientReportOverridesBrowser(t *testing.T) {
	no := false
	p := Detect(Signals{UserAgent: uaChromeMac, NativeSpeechAPI: &no, NativeEngineConfigured: true})
	if p.HasNativeSpeechAPI || p.Strategy != StrategyRawPCM {
		t.Fatalf("expected client report to disable native path, got %+v", p)
	}
}

func TestLocalSignalsEchoRiskFromDevice(t *testing.T) {
	p := Detect(LocalSignals("AirPods Pro", true))
	if p.Browser != BrowserNone {
		t.Fatalf("expected no browser for local capture, got %s", p.Browser)
	}
	if !p.HasEchoRisk {
		t.Fatalf("expected bluetooth headset to carry echo risk")
	}
	if p.Strategy != StrategyNative {
		t.Fatalf("expected native strategy for configured local engine, got %s", p.Strategy)
	}
	if Detect(LocalSignals("USB Microphone", false)).Strategy != StrategyRawPCM {
		t.Fatalf("expected raw pcm without an engine")
	}
}
