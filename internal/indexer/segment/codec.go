package segment

import (
	"github.com/fxamacker/cbor/v2"
)

// Payloads use CBOR core deterministic encoding: sorted map keys and the
// shortest lossless number form, so rebuilding an unchanged corpus yields a
// byte-identical payload and checksum.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("segment: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("segment: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

func unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }
