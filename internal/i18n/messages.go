// Package i18n holds the user-facing error messages in every supported language.
package i18n

import "golang.org/x/text/language"

var supported = []language.Tag{language.English, language.Thai}

var matcher = language.NewMatcher(supported)

var messages = map[string]map[language.Tag]string{
	"UNAUTHENTICATED": {
		language.English: "Please sign in to continue.",
		language.Thai:    "กรุณาเข้าสู่ระบบก่อนดำเนินการ",
	},
	"UNAUTHORIZED": {
		language.English: "Only administrators can perform this action.",
		language.Thai:    "เฉพาะผู้ดูแลระบบเท่านั้นที่ทำรายการนี้ได้",
	},
	"FORGED_REQUEST": {
		language.English: "The security token is missing or expired. Reload the page and try again.",
		language.Thai:    "โทเคนความปลอดภัยไม่ถูกต้องหรือหมดอายุ กรุณาโหลดหน้าใหม่แล้วลองอีกครั้ง",
	},
	"MALFORMED_INPUT": {
		language.English: "Some fields are missing or invalid.",
		language.Thai:    "ข้อมูลบางช่องไม่ครบหรือไม่ถูกต้อง",
	},
	"INVALID_PROOF_FILE": {
		language.English: "The payment slip must be a JPG, PNG or WEBP image within the size limit.",
		language.Thai:    "หลักฐานการชำระเงินต้องเป็นไฟล์ภาพ JPG, PNG หรือ WEBP และมีขนาดไม่เกินที่กำหนด",
	},
	"FORBIDDEN": {
		language.English: "You can only act on attendees of your own hospital.",
		language.Thai:    "คุณทำรายการได้เฉพาะผู้เข้าร่วมของโรงพยาบาลตนเองเท่านั้น",
	},
	"NOT_FOUND": {
		language.English: "The requested record was not found.",
		language.Thai:    "ไม่พบข้อมูลที่ต้องการ",
	},
	"ALREADY_DECIDED": {
		language.English: "This payment has already been reviewed.",
		language.Thai:    "รายการชำระเงินนี้ได้รับการตรวจสอบแล้ว",
	},
	"ATTENDEE_NOT_PAYABLE": {
		language.English: "One or more attendees are not awaiting payment.",
		language.Thai:    "มีผู้เข้าร่วมบางรายที่ไม่อยู่ในสถานะรอชำระเงิน",
	},
	"DUPLICATE": {
		language.English: "A record with the same key already exists.",
		language.Thai:    "มีข้อมูลนี้อยู่ในระบบแล้ว",
	},
	"SERVICE_UNAVAILABLE": {
		language.English: "Service is currently unavailable. Please try again later.",
		language.Thai:    "ระบบขัดข้องชั่วคราว กรุณาลองใหม่อีกครั้ง",
	},
}

// Lang picks the best supported language for an Accept-Language header.
func Lang(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return language.English
	}
	return supported[idx]
}

// Message returns the localized text for code, falling back to English and
// then to the code itself.
func Message(lang language.Tag, code string) string {
	m, ok := messages[code]
	if !ok {
		return code
	}
	if s, ok := m[lang]; ok {
		return s
	}
	return m[language.English]
}
