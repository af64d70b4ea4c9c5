package scope

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Scopes travel through dumps as their dotted text: atom numbers are
// only meaningful inside the process that interned them.

// EncodeMsgpack implements msgpack.CustomEncoder.
func (s Scope) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(s.String())
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (s *Scope) DecodeMsgpack(dec *msgpack.Decoder) error {
	text, err := dec.DecodeString()
	if err != nil {
		return err
	}
	sc, err := New(text)
	if err != nil {
		return err
	}
	*s = sc
	return nil
}
