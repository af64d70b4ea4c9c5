package syntax

import (
	"github.com/vmihailenco/msgpack/v5"
)

// setPayload is the serialized shape of a Set: the linked syntaxes and
// their load paths. Lazy caches are rebuilt on first use after load.
type setPayload struct {
	Syntaxes []Syntax
	Paths    []pathEntry
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (s *Set) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(setPayload{Syntaxes: s.syntaxes, Paths: s.pathSyntaxes})
}

// DecodeMsgpack implements msgpack.CustomDecoder. Decode into a fresh
// Set; the first-line cache is cleared and rebuilt on first use.
func (s *Set) DecodeMsgpack(dec *msgpack.Decoder) error {
	var p setPayload
	if err := dec.Decode(&p); err != nil {
		return err
	}
	s.syntaxes = p.Syntaxes
	s.pathSyntaxes = p.Paths
	s.firstLineCache = nil
	return nil
}
