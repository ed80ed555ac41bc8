package chain

import (
	"encoding/json"
	"errors"

	"github.com/ziesha-go/ledger/pkg/types"
)

// wireTx is the block-body persistence envelope: TxData is an interface, so
// it round-trips through a discriminator tag plus the concrete variant's own
// JSON encoding (idiomatic Go's answer to persisting a closed interface,
// distinct from any cross-process transaction wire format, which is out of
// scope per spec §1 "circuit internals").
type wireTx struct {
	Src   *types.Address  `json:"src,omitempty"`
	Nonce uint32          `json:"nonce"`
	Kind  string          `json:"kind"`
	Data  json.RawMessage `json:"data"`
	Fee   types.Money     `json:"fee"`
	Sig   types.Signature `json:"sig"`
	Memo  string          `json:"memo"`
}

var errUnknownTxKind = errors.New("chain: unknown transaction kind in stored block body")

func encodeTx(tx *types.Transaction) (wireTx, error) {
	var kind string
	switch tx.Data.(type) {
	case types.RegularSend:
		kind = "RegularSend"
	case types.CreateContract:
		kind = "CreateContract"
	case types.UpdateContract:
		kind = "UpdateContract"
	case types.CreateToken:
		kind = "CreateToken"
	case types.UpdateToken:
		kind = "UpdateToken"
	case types.Delegate:
		kind = "Delegate"
	case types.UpdateStaker:
		kind = "UpdateStaker"
	case types.AutoDelegate:
		kind = "AutoDelegate"
	default:
		return wireTx{}, errUnknownTxKind
	}
	data, err := json.Marshal(tx.Data)
	if err != nil {
		return wireTx{}, err
	}
	return wireTx{
		Src:   tx.Src,
		Nonce: tx.Nonce,
		Kind:  kind,
		Data:  data,
		Fee:   tx.Fee,
		Sig:   tx.Sig,
		Memo:  tx.Memo,
	}, nil
}

func decodeTx(w wireTx) (types.Transaction, error) {
	var data types.TxData
	switch w.Kind {
	case "RegularSend":
		var v types.RegularSend
		if err := json.Unmarshal(w.Data, &v); err != nil {
			return types.Transaction{}, err
		}
		data = v
	case "CreateContract":
		var v types.CreateContract
		if err := json.Unmarshal(w.Data, &v); err != nil {
			return types.Transaction{}, err
		}
		data = v
	case "UpdateContract":
		var v types.UpdateContract
		if err := json.Unmarshal(w.Data, &v); err != nil {
			return types.Transaction{}, err
		}
		data = v
	case "CreateToken":
		var v types.CreateToken
		if err := json.Unmarshal(w.Data, &v); err != nil {
			return types.Transaction{}, err
		}
		data = v
	case "UpdateToken":
		var v types.UpdateToken
		if err := json.Unmarshal(w.Data, &v); err != nil {
			return types.Transaction{}, err
		}
		data = v
	case "Delegate":
		var v types.Delegate
		if err := json.Unmarshal(w.Data, &v); err != nil {
			return types.Transaction{}, err
		}
		data = v
	case "UpdateStaker":
		var v types.UpdateStaker
		if err := json.Unmarshal(w.Data, &v); err != nil {
			return types.Transaction{}, err
		}
		data = v
	case "AutoDelegate":
		var v types.AutoDelegate
		if err := json.Unmarshal(w.Data, &v); err != nil {
			return types.Transaction{}, err
		}
		data = v
	default:
		return types.Transaction{}, errUnknownTxKind
	}
	return types.Transaction{
		Src:   w.Src,
		Nonce: w.Nonce,
		Data:  data,
		Fee:   w.Fee,
		Sig:   w.Sig,
		Memo:  w.Memo,
	}, nil
}

// encodeBody renders a block body for storage under kvstore.BlockKey.
func encodeBody(body []types.Transaction) ([]byte, error) {
	wire := make([]wireTx, len(body))
	for i := range body {
		w, err := encodeTx(&body[i])
		if err != nil {
			return nil, err
		}
		wire[i] = w
	}
	return json.Marshal(wire)
}

// decodeBody reverses encodeBody.
func decodeBody(raw []byte) ([]types.Transaction, error) {
	var wire []wireTx
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	body := make([]types.Transaction, len(wire))
	for i, w := range wire {
		tx, err := decodeTx(w)
		if err != nil {
			return nil, err
		}
		body[i] = tx
	}
	return body, nil
}
