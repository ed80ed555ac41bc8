package txapply

import (
	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

// applyCreateToken mints a new fungible asset at a content-addressed id
// and credits its initial supply to its creator (spec §4.D CreateToken).
func applyCreateToken(db kvstore.Store, src types.Address, tx *types.Transaction, d types.CreateToken) error {
	if len(d.Token.Name) == 0 || len(d.Token.Symbol) == 0 {
		return ErrTokenBadNameSymbol
	}

	h, err := contentAddressHash(src, tx.Nonce, d.Token)
	if err != nil {
		return err
	}
	tid := types.TokenId(scalar.FromDigest(h))

	if _, found, err := GetToken(db, tid); err != nil {
		return err
	} else if found {
		return ErrTokenAlreadyExists
	}

	token := d.Token
	token.Id = tid
	if err := SetToken(db, &token); err != nil {
		return err
	}
	if token.Supply > 0 {
		if err := SetBalance(db, src, tid, token.Supply); err != nil {
			return err
		}
	}
	return nil
}

// applyUpdateToken mints additional supply or reassigns the minter key of
// an existing token (spec §4.D UpdateToken).
func applyUpdateToken(db kvstore.Store, src types.Address, d types.UpdateToken) error {
	token, found, err := GetToken(db, d.TokenId)
	if err != nil {
		return err
	}
	if !found {
		return ErrTokenNotFound
	}
	if token.Minter == nil {
		return ErrTokenNotUpdatable
	}
	if !token.Minter.Equal(src) {
		return ErrTokenUpdatePermissionDenied
	}

	switch d.Kind {
	case types.TokenUpdateMint:
		newSupply := token.Supply + d.MintAmount
		if newSupply < token.Supply {
			return ErrTokenSupplyOverflow
		}
		token.Supply = newSupply
		bal, err := GetBalance(db, src, token.Id)
		if err != nil {
			return err
		}
		if err := SetBalance(db, src, token.Id, bal+d.MintAmount); err != nil {
			return err
		}
	case types.TokenUpdateChangeMinter:
		token.Minter = d.NewMinter
	default:
		return ErrInvalidStateModel
	}
	return SetToken(db, token)
}
