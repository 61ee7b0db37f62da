package model

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CanonicalName returns name with the first letter upper-cased and the rest
// lower-cased, the form character and friend names are stored in.
func CanonicalName(name string) string {
	if name == "" {
		return name
	}
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + strings.ToLower(name[size:])
}

// CharacterFromMailbox strips a fully qualified mailbox address
// ("SOE.EQ.Server.bob") down to the canonical character name.
func CharacterFromMailbox(mailbox string) string {
	if i := strings.LastIndexByte(mailbox, '.'); i >= 0 {
		mailbox = mailbox[i+1:]
	}
	return CanonicalName(mailbox)
}
