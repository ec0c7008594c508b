package infra

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"regexp"
)

// uidSpace = 10^15 (~2^49.8) combinações: três grupos de 5 dígitos.
const uidSpace = 1_000_000_000_000_000

var uidPattern = regexp.MustCompile(`^\d{5}-\d{5}-\d{5}$`)

// NewUID gera um identificador "12345-67890-12345" a partir de crypto/rand.
func NewUID() string {
	var b [8]byte
	// amostragem por rejeição para não enviesar o módulo
	limit := ^uint64(0) - (^uint64(0) % uidSpace)
	for {
		if _, err := rand.Read(b[:]); err != nil {
			panic(fmt.Sprintf("crypto/rand: %v", err))
		}
		if v := binary.BigEndian.Uint64(b[:]); v < limit {
			return formatUID(v % uidSpace)
		}
	}
}

func formatUID(v uint64) string {
	s := fmt.Sprintf("%015d", v)
	return s[0:5] + "-" + s[5:10] + "-" + s[10:15]
}

// IsUID informa se o segmento de path tem o formato de um UID.
func IsUID(seg string) bool {
	return uidPattern.MatchString(seg)
}
