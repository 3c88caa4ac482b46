package fluxled

import "sort"

// Effect names supported by the controllers.
const (
	EffectColorloop         = "colorloop"
	EffectRedFade           = "red_fade"
	EffectGreenFade         = "green_fade"
	EffectBlueFade          = "blue_fade"
	EffectYellowFade        = "yellow_fade"
	EffectCyanFade          = "cyan_fade"
	EffectPurpleFade        = "purple_fade"
	EffectWhiteFade         = "white_fade"
	EffectRedGreenCrossFade = "rg_cross_fade"
	EffectRedBlueCrossFade  = "rb_cross_fade"
	EffectGreenBlueCrossFade = "gb_cross_fade"
	EffectColorstrobe       = "colorstrobe"
	EffectRedStrobe         = "red_strobe"
	EffectGreenStrobe       = "green_strobe"
	EffectBlueStrobe        = "blue_strobe"
	EffectYellowStrobe      = "yellow_strobe"
	EffectCyanStrobe        = "cyan_strobe"
	EffectPurpleStrobe      = "purple_strobe"
	EffectWhiteStrobe       = "white_strobe"
	EffectColorjump         = "colorjump"

	// EffectCustom plays the pattern configured with SetCustomPattern.
	EffectCustom = "custom"

	// EffectRandom sets a random static color. Handled by Light, not by
	// the controller firmware.
	EffectRandom = "random"
)

// CustomEffectCode is the mode byte reported while a custom pattern plays.
const CustomEffectCode = 0x60

// effectCodes maps effect names to controller pattern codes.
var effectCodes = map[string]byte{
	EffectColorloop:          0x25,
	EffectRedFade:            0x26,
	EffectGreenFade:          0x27,
	EffectBlueFade:           0x28,
	EffectYellowFade:         0x29,
	EffectCyanFade:           0x2A,
	EffectPurpleFade:         0x2B,
	EffectWhiteFade:          0x2C,
	EffectRedGreenCrossFade:  0x2D,
	EffectRedBlueCrossFade:   0x2E,
	EffectGreenBlueCrossFade: 0x2F,
	EffectColorstrobe:        0x30,
	EffectRedStrobe:          0x31,
	EffectGreenStrobe:        0x32,
	EffectBlueStrobe:         0x33,
	EffectYellowStrobe:       0x34,
	EffectCyanStrobe:         0x35,
	EffectPurpleStrobe:       0x36,
	EffectWhiteStrobe:        0x37,
	EffectColorjump:          0x38,
}

// EffectCode returns the controller pattern code for an effect name.
func EffectCode(name string) (byte, bool) {
	code, ok := effectCodes[name]
	return code, ok
}

// EffectName returns the effect name for a controller pattern code.
func EffectName(code byte) (string, bool) {
	if code == CustomEffectCode {
		return EffectCustom, true
	}
	for name, c := range effectCodes {
		if c == code {
			return name, true
		}
	}
	return "", false
}

// Effects returns the built-in effect names, sorted, plus EffectRandom.
func Effects() []string {
	names := make([]string, 0, len(effectCodes)+1)
	for name := range effectCodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return append(names, EffectRandom)
}
