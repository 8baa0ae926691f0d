// payload.go implements the two JSON payload shapes carried inside WAL
// frames: a legacy single-operation record and a transactional
// begin/op/commit frame. The transactional frame's value field is
// "double-optional" — its JSON key can be absent (not applicable), present
// with an explicit null (tombstone), or present with base64 data (a put).
package wal

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Kind distinguishes the payload shapes a WAL frame can carry.
type Kind int

const (
	// KindLegacy is a single committed put/delete, used by one-op writes.
	KindLegacy Kind = iota
	KindBegin
	KindOp
	KindCommit
)

// Payload is the decoded form of a WAL frame's JSON body.
type Payload struct {
	Kind     Kind
	TxID     string
	Key      string
	HasValue bool
	IsDelete bool
	Value    []byte
}

type wireFrame struct {
	Type  string  `json:"type,omitempty"`
	TxID  string  `json:"txid,omitempty"`
	Key   *string `json:"key,omitempty"`
	Value *string `json:"value,omitempty"`
}

// EncodeLegacy builds a legacy `{key, value?}` payload. value == nil means a
// tombstone (explicit JSON null).
func EncodeLegacy(key string, value []byte) []byte {
	return encodePayload("", "", &key, value, value == nil)
}

// EncodeBegin builds a `{type:"begin", txid}` payload.
func EncodeBegin(txid string) []byte {
	return encodePayload("begin", txid, nil, nil, false)
}

// EncodeOp builds a `{type:"op", txid, key, value}` payload. value == nil
// means a tombstone.
func EncodeOp(txid, key string, value []byte) []byte {
	return encodePayload("op", txid, &key, value, value == nil)
}

// EncodeCommit builds a `{type:"commit", txid}` payload.
func EncodeCommit(txid string) []byte {
	return encodePayload("commit", txid, nil, nil, false)
}

func encodePayload(typ, txid string, key *string, value []byte, explicitNull bool) []byte {
	wf := wireFrame{Type: typ, TxID: txid, Key: key}
	if explicitNull {
		var null *string
		wf.Value = null
		data, _ := json.Marshal(struct {
			Type  string  `json:"type,omitempty"`
			TxID  string  `json:"txid,omitempty"`
			Key   *string `json:"key,omitempty"`
			Value *string `json:"value"`
		}{typ, txid, key, nil})
		return data
	}
	if value != nil {
		enc := base64.StdEncoding.EncodeToString(value)
		wf.Value = &enc
	}
	data, _ := json.Marshal(wf)
	return data
}

// Decode parses a WAL frame payload, recovering whether "value" was absent,
// explicitly null, or present.
func Decode(payload []byte) (Payload, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Payload{}, fmt.Errorf("wal: decode payload: %w", err)
	}

	p := Payload{}
	if t, ok := raw["type"]; ok {
		var typ string
		if err := json.Unmarshal(t, &typ); err != nil {
			return Payload{}, err
		}
		switch typ {
		case "begin":
			p.Kind = KindBegin
		case "op":
			p.Kind = KindOp
		case "commit":
			p.Kind = KindCommit
		default:
			return Payload{}, fmt.Errorf("wal: unknown frame type %q", typ)
		}
	} else {
		p.Kind = KindLegacy
	}

	if t, ok := raw["txid"]; ok {
		if err := json.Unmarshal(t, &p.TxID); err != nil {
			return Payload{}, err
		}
	}
	if k, ok := raw["key"]; ok {
		if err := json.Unmarshal(k, &p.Key); err != nil {
			return Payload{}, err
		}
	}
	if v, ok := raw["value"]; ok {
		p.HasValue = true
		if string(v) == "null" {
			p.IsDelete = true
		} else {
			var enc string
			if err := json.Unmarshal(v, &enc); err != nil {
				return Payload{}, err
			}
			decoded, err := base64.StdEncoding.DecodeString(enc)
			if err != nil {
				return Payload{}, fmt.Errorf("wal: decode value: %w", err)
			}
			p.Value = decoded
		}
	}
	return p, nil
}
