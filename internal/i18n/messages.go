// Package i18n resolves the user-facing blocking messages the kiosk shows
// for device and quota failures.
package i18n

import "golang.org/x/text/language"

// Message keys.
const (
	KeyDeviceNoDevice   = "device.no_device"
	KeyDevicePermission = "device.permission_denied"
	KeyDeviceBusy       = "device.busy"
	KeyQuotaExhausted   = "quota.exhausted"
	KeyStreamNotReady   = "stream.not_ready"
)

var supported = []language.Tag{
	language.English,
	language.Indonesian,
}

var matcher = language.NewMatcher(supported)

var catalog = map[language.Tag]map[string]string{
	language.English: {
		KeyDeviceNoDevice:   "No camera was found. Please check the device connection.",
		KeyDevicePermission: "Camera access was denied. Please allow camera access and try again.",
		KeyDeviceBusy:       "The camera is in use by another application.",
		KeyQuotaExhausted:   "This booth has reached its photo limit. Please try again later.",
		KeyStreamNotReady:   "The camera is still starting up. Please wait a moment.",
	},
	language.Indonesian: {
		KeyDeviceNoDevice:   "Kamera tidak ditemukan. Periksa koneksi perangkat.",
		KeyDevicePermission: "Akses kamera ditolak. Izinkan akses kamera lalu coba lagi.",
		KeyDeviceBusy:       "Kamera sedang digunakan aplikasi lain.",
		KeyQuotaExhausted:   "Booth ini sudah mencapai batas foto. Silakan coba lagi nanti.",
		KeyStreamNotReady:   "Kamera masih menyala. Mohon tunggu sebentar.",
	},
}

// Message returns the catalog entry for the given key in the closest
// supported language. Unknown locales and keys fall back to English.
func Message(locale, key string) string {
	_, idx := language.MatchStrings(matcher, locale)
	base := supported[idx]
	if msg, ok := catalog[base][key]; ok {
		return msg
	}
	return catalog[language.English][key]
}
