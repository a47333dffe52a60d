package pgp

import "regexp"

// armorPattern recognizes an ASCII-armored OpenPGP block embedded in
// surrounding text: header line, optional armor headers, base64 body
// lines of at most 76 characters with padding, the four-character
// CRC24 line (optional; the crypto-refresh drops it), and the footer.
// A cleartext-signature preamble may precede the block. The BEGIN
// marker is deliberately not anchored to a line start, so a block
// pasted after other words on the same line is still found; the
// interior lines stay anchored. RE2 has no backreferences, so the
// header and footer magic are captured separately and compared by the
// caller.
var armorPattern = regexp.MustCompile(`(?m)` +
	`(?:-{5}BEGIN PGP SIGNED MESSAGE-{5}\r?\n` +
	`(?:Hash: [A-Za-z0-9\-,]+(?:\r?\n){2})?` +
	`(?:[^\r\n]*\r?\n)*?)?` +
	`-{5}BEGIN PGP (?P<magic>[A-Z0-9 ,]+)-{5}\r?\n` +
	`(?:(?:[^\r\n]+: [^\r\n]+\r?\n)+)?(?:\r?\n)?` +
	`(?:[A-Za-z0-9+/]{1,75}={0,2}\r?\n)+` +
	`(?:^=[A-Za-z0-9+/]{4}\r?\n)?` +
	`^-{5}END PGP (?P<end>[A-Z0-9 ,]+)-{5}`)

var (
	armorMagicIndex    = armorPattern.SubexpIndex("magic")
	armorEndMagicIndex = armorPattern.SubexpIndex("end")
)

// ArmorMatch locates one armored block inside a larger text.
type ArmorMatch struct {
	Block string // the full armored block
	Start int    // byte offset of the block in the searched text
	End   int    // byte offset just past the block
}

// FindArmorBlock returns the first armored block whose footer magic
// matches its header magic. The search is not anchored; blocks may be
// surrounded by arbitrary plain text.
func FindArmorBlock(text string) (ArmorMatch, bool) {
	offset := 0
	for offset <= len(text) {
		loc := armorPattern.FindStringSubmatchIndex(text[offset:])
		if loc == nil {
			return ArmorMatch{}, false
		}
		start, end := offset+loc[0], offset+loc[1]
		magic := text[offset+loc[2*armorMagicIndex] : offset+loc[2*armorMagicIndex+1]]
		endMagic := text[offset+loc[2*armorEndMagicIndex] : offset+loc[2*armorEndMagicIndex+1]]
		if magic == endMagic {
			return ArmorMatch{Block: text[start:end], Start: start, End: end}, true
		}
		offset = start + 1
	}
	return ArmorMatch{}, false
}
