package ledger

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Encode serializes the metadata as a compact JSON object for the JSONB
// column, omitting zero fields.
func (m Metadata) Encode() []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if m.Source != "" {
			e.Field("source", func(e *jx.Encoder) { e.Str(m.Source) })
		}
		if m.OrderID != "" {
			e.Field("order_id", func(e *jx.Encoder) { e.Str(m.OrderID) })
		}
		if m.ProductID != "" {
			e.Field("product_id", func(e *jx.Encoder) { e.Str(m.ProductID) })
		}
		if m.Quantity != 0 {
			e.Field("quantity", func(e *jx.Encoder) { e.Int64(m.Quantity) })
		}
	})
	return e.Bytes()
}

// DecodeMetadata parses a metadata JSON object. Unknown fields are skipped so
// older readers tolerate newer payloads.
func DecodeMetadata(data []byte) (Metadata, error) {
	var m Metadata
	if len(data) == 0 {
		return m, nil
	}

	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "source":
			m.Source, err = d.Str()
		case "order_id":
			m.OrderID, err = d.Str()
		case "product_id":
			m.ProductID, err = d.Str()
		case "quantity":
			m.Quantity, err = d.Int64()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return Metadata{}, errors.Wrap(err, "decode ledger metadata")
	}

	return m, nil
}
